package main

import (
	"github.com/kalambet/cvsift/internal/analysis"
	"github.com/kalambet/cvsift/internal/config"
)

func newClient(cfg config.Config) (*analysis.Client, error) {
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}
	c := analysis.NewClient(cfg.Service.BaseURL, cfg.Service.APIKey)
	c.SetTimeout(timeout)
	return c, nil
}
