// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package rpc

import (
	"net/rpc"
)

// Client is the host side of Lifecycle.
type Client struct {
	client *rpc.Client
}

var _ Lifecycle = (*Client)(nil)

func (c *Client) Info() (Info, error) {
	var resp Info
	err := c.client.Call("Plugin.Info", new(interface{}), &resp)
	return resp, err
}

func (c *Client) Initialize() error {
	return c.client.Call("Plugin.Initialize", new(interface{}), new(bool))
}

func (c *Client) Activate() error {
	return c.client.Call("Plugin.Activate", new(interface{}), new(bool))
}

func (c *Client) Deactivate() error {
	return c.client.Call("Plugin.Deactivate", new(interface{}), new(bool))
}

func (c *Client) SaveState() ([]byte, error) {
	var resp []byte
	err := c.client.Call("Plugin.SaveState", new(interface{}), &resp)
	return resp, err
}

func (c *Client) RestoreState(state []byte) error {
	return c.client.Call("Plugin.RestoreState", state, new(bool))
}

// Server is the plugin side of Lifecycle.
type Server struct {
	Impl Lifecycle
}

func (s *Server) Info(_ interface{}, resp *Info) error {
	info, err := s.Impl.Info()
	*resp = info
	return err
}

func (s *Server) Initialize(_ interface{}, _ *bool) error {
	return s.Impl.Initialize()
}

func (s *Server) Activate(_ interface{}, _ *bool) error {
	return s.Impl.Activate()
}

func (s *Server) Deactivate(_ interface{}, _ *bool) error {
	return s.Impl.Deactivate()
}

func (s *Server) SaveState(_ interface{}, resp *[]byte) error {
	state, err := s.Impl.SaveState()
	*resp = state
	return err
}

func (s *Server) RestoreState(state []byte, _ *bool) error {
	return s.Impl.RestoreState(state)
}
