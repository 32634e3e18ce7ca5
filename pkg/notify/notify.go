// Package notify pushes progress messages to the browser. Each client id
// owns a channel node in the realtime database; the page subscribes to it
// and renders every message it receives.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	xe "github.com/guojinxiang/ndvi-time-series/pkg/errors"
)

// Messenger delivers messages to a client's channel.
type Messenger interface {
	// Send delivers one message. Messages with the same id overwrite
	// each other, which is how progress updates work.
	Send(ctx context.Context, clientID string, message domain.Message) error

	// Clear drops the client's channel with everything in it.
	Clear(ctx context.Context, clientID string) error
}

type firebase struct {
	databaseURL string
	hc          *http.Client
}

// NewFirebase builds a Messenger against the realtime database at
// databaseURL. The http client has to carry credentials allowed to write
// under /channels.
func NewFirebase(databaseURL string, hc *http.Client) Messenger {
	return &firebase{
		databaseURL: strings.TrimSuffix(databaseURL, "/"),
		hc:          hc,
	}
}

func (f *firebase) channel(clientID string) string {
	return fmt.Sprintf("%s/channels/%s.json", f.databaseURL, clientID)
}

func (f *firebase) Send(ctx context.Context, clientID string, message domain.Message) error {
	payload, err := json.Marshal(map[string]domain.Message{message.ID: message})
	if err != nil {
		return xe.Wrap(err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPatch, f.channel(clientID), bytes.NewReader(payload),
	)
	if err != nil {
		return xe.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	return f.do(req)
}

func (f *firebase) Clear(ctx context.Context, clientID string) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodDelete, f.channel(clientID), nil,
	)
	if err != nil {
		return xe.Wrap(err)
	}
	return f.do(req)
}

func (f *firebase) do(req *http.Request) error {
	resp, err := f.hc.Do(req)
	if err != nil {
		return xe.Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf(
			"the channel backend rejected the request with status %d: %s",
			resp.StatusCode, body,
		)
	}
	return nil
}
