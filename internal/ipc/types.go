package ipc

import (
	"encoding/json"
	"net"
	"sync"
)

type Command struct {
	ID      int      `json:"id"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

type Response struct {
	ID     int             `json:"id"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Handler executes one command. The result is encoded as JSON.
type Handler func(cmd Command) (interface{}, error)

type Server struct {
	path     string
	listener net.Listener
	handler  Handler

	mutex sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

type Client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}
