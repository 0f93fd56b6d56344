package bridge

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mqtt-automations/internal/shared"
)

// Bridge wires a [Router] to a [Client].
type Bridge struct {
	client *Client
	router *Router
	logger *log.Logger
}

// New creates a [Bridge] that publishes through client.
func New(client *Client, engine Engine, runs RunRecorder, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Bridge{
		client: client,
		router: NewRouter(engine, client, runs, logger),
		logger: logger,
	}
}

// Connected reports whether the bus connection is up.
func (b *Bridge) Connected() bool {
	return b.client.Connected()
}

// Run subscribes to the command topics and handles messages until ctx is done, then waits for
// in-flight commands and disconnects.
func (b *Bridge) Run(ctx context.Context) error {
	for _, topic := range b.router.Topics() {
		b.client.Handle(topic, func(topic, payload string) {
			b.router.Dispatch(ctx, topic, payload)
		})
	}

	if err := b.client.Connect(ctx); err != nil {
		// stop the retry loop started by Connect
		b.client.Disconnect()
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	b.logger.Info("listening for commands", "topics", b.router.Topics())

	<-ctx.Done()
	b.router.Close()
	b.client.Disconnect()
	return nil
}
