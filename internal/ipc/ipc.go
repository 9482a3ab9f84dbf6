// Package ipc lets CLI invocations query a wallet that is held open by a
// running sync process, over a unix socket next to the wallet file.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
)

var ErrNoServer = errors.New("no wallet process is listening")

var commandID atomic.Int32

func generateCommandID() int {
	return int(commandID.Add(1))
}

// NewServer listens on path and serves each connection's commands with h.
// A stale socket file left by a dead process is replaced.
func NewServer(path string, h Handler) (*Server, error) {
	if _, err := os.Stat(path); err == nil {
		if conn, err := net.DialTimeout("unix", path, time.Second); err == nil {
			conn.Close()
			return nil, fmt.Errorf("socket %s is in use by another process", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("failed to remove existing socket file: %w", err)
		}
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	server := &Server{
		path:     path,
		listener: listener,
		handler:  h,
		conns:    make(map[net.Conn]struct{}),
	}
	server.wg.Add(1)
	go server.accept()

	logger.Wallet.Debug().Str("socket", path).Msg("IPC server listening")
	return server, nil
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Wallet.Warn().Err(err).Msg("IPC accept failed")
			continue
		}
		s.mutex.Lock()
		s.conns[conn] = struct{}{}
		s.mutex.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		s.mutex.Lock()
		delete(s.conns, conn)
		s.mutex.Unlock()
		conn.Close()
		s.wg.Done()
	}()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var cmd Command
		if err := dec.Decode(&cmd); err != nil {
			return
		}
		if err := enc.Encode(s.execute(cmd)); err != nil {
			logger.Wallet.Warn().Err(err).Int("id", cmd.ID).Msg("Failed to write IPC response")
			return
		}
	}
}

func (s *Server) execute(cmd Command) Response {
	resp := Response{ID: cmd.ID}
	result, err := s.handler(cmd)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = fmt.Sprintf("error marshaling result: %v", err)
		return resp
	}
	resp.Result = raw
	return resp
}

// Close stops accepting commands, drops open connections and removes the
// socket file.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.mutex.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mutex.Unlock()
	s.wg.Wait()
	if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}

// NewClient connects to the server at path. It returns ErrNoServer when
// nothing is listening there.
func NewClient(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoServer, err)
	}
	return &Client{conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}, nil
}

// SendCommand runs command on the server and decodes its result into out.
func (c *Client) SendCommand(command string, args []string, out interface{}) error {
	cmd := Command{
		ID:      generateCommandID(),
		Command: command,
		Args:    args,
	}
	if err := c.enc.Encode(cmd); err != nil {
		return fmt.Errorf("error writing command to connection: %w", err)
	}

	var response Response
	if err := c.dec.Decode(&response); err != nil {
		return fmt.Errorf("error reading response from connection: %w", err)
	}
	if response.ID != cmd.ID {
		return fmt.Errorf("response id %d does not match command %d", response.ID, cmd.ID)
	}
	if response.Error != "" {
		return errors.New(response.Error)
	}
	if out == nil || len(response.Result) == 0 {
		return nil
	}
	return json.Unmarshal(response.Result, out)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
