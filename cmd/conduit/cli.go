package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/eleven-am/conduit"
	"github.com/eleven-am/conduit/internal/xjson"
)

type cli struct {
	configFile string
	dataDir    string
	out        io.Writer
}

func (c *cli) loadConfig() (*conduit.Config, error) {
	cfg := conduit.DefaultConfig()
	if c.configFile != "" {
		loaded, err := conduit.LoadConfig(c.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if c.dataDir != "" {
		cfg.DataDir = c.dataDir
	}
	return cfg, nil
}

func (c *cli) open() (*conduit.Manager, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return conduit.New(cfg)
}

// withManager opens a manager for the duration of fn.
func (c *cli) withManager(fn func(m *conduit.Manager) error) error {
	m, err := c.open()
	if err != nil {
		return err
	}
	defer m.Close(context.Background())
	return fn(m)
}

func (c *cli) printJSON(v interface{}) error {
	data, err := xjson.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

func (c *cli) printLine(v interface{}) error {
	data, err := xjson.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

// parseParams turns key=value pairs into run params. Values that parse as
// JSON keep their type; anything else is a string.
func parseParams(pairs []string) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param %q, expected key=value", pair)
		}

		var value interface{}
		if err := xjson.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		params[key] = value
	}
	return params, nil
}
