// Package nats provides a kv.Store on top of NATS JetStream key-value
// buckets, plus connection helpers shared by everything that talks to NATS.
package nats

import (
	"os"
	"sync"

	natsgo "github.com/nats-io/nats.go"
)

// URLEnv names the environment variable ConnectDefault reads.
const URLEnv = "CRISTALINE_NATS_URL"

type closeFunc = func()

// Connector opens a connection and returns a function releasing it.
type Connector func() (nc *natsgo.Conn, close closeFunc, err error)

// ReuseConnection shares a single connection between every caller of the
// returned Connector. The connection is closed when the last lease is
// released and reopened by the next caller.
func ReuseConnection(connect Connector) Connector {
	var (
		mu       sync.Mutex
		nc       *natsgo.Conn
		closeCon closeFunc
		leases   int
	)
	release := func() {
		mu.Lock()
		defer mu.Unlock()
		leases--
		if leases == 0 && closeCon != nil {
			closeCon()
			nc, closeCon = nil, nil
		}
	}
	return func() (*natsgo.Conn, closeFunc, error) {
		mu.Lock()
		defer mu.Unlock()
		if nc == nil {
			var err error
			nc, closeCon, err = connect()
			if err != nil {
				return nil, nil, err
			}
		}
		leases++
		var once sync.Once
		return nc, func() { once.Do(release) }, nil
	}
}

func ConnectURL(natsURL string, opts ...natsgo.Option) Connector {
	return func() (*natsgo.Conn, closeFunc, error) {
		opts := append([]natsgo.Option{
			natsgo.Name("cristaline"),
			natsgo.MaxReconnects(3),
		}, opts...)
		nc, err := natsgo.Connect(natsURL, opts...)
		if err != nil {
			return nil, nil, err
		}
		return nc, nc.Close, nil
	}
}

// ConnectDefault connects to $CRISTALINE_NATS_URL, or to the default local
// server if it is unset.
func ConnectDefault() Connector {
	if natsURL := os.Getenv(URLEnv); natsURL != "" {
		return ConnectURL(natsURL)
	}
	return ConnectURL(natsgo.DefaultURL)
}
