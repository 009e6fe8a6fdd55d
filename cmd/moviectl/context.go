package main

import (
	"strings"
	"sync"

	"github.com/mark-c-hall/movie-catalog/internal/client"
	"github.com/mark-c-hall/movie-catalog/internal/config"
)

type commandContext struct {
	backendFlag *string
	jsonFlag    *bool

	clientOnce sync.Once
	client     *client.Client
	clientErr  error
}

func newCommandContext(backendFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		backendFlag: backendFlag,
		jsonFlag:    jsonFlag,
	}
}

func (c *commandContext) apiClient() (*client.Client, error) {
	c.clientOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.clientErr = err
			return
		}
		if c.backendFlag != nil && strings.TrimSpace(*c.backendFlag) != "" {
			cfg.Client.BaseURL = strings.TrimRight(strings.TrimSpace(*c.backendFlag), "/")
		}
		c.client = client.NewClient(cfg.Client)
	})
	return c.client, c.clientErr
}

func (c *commandContext) withClient(fn func(*client.Client) error) error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	return fn(api)
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}
