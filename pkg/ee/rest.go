package ee

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/guojinxiang/ndvi-time-series/pkg/ee/expr"
	xe "github.com/guojinxiang/ndvi-time-series/pkg/errors"
	"github.com/guojinxiang/ndvi-time-series/pkg/utils/retry"
)

type restClient struct {
	baseURL  string
	hc       *http.Client
	backoff  func() retry.Backoff
	attempts int
}

type Option func(*restClient)

// WithBackoff replaces the backoff between retried requests.
// The factory is invoked once per request.
func WithBackoff(factory func() retry.Backoff) Option {
	return func(c *restClient) { c.backoff = factory }
}

// WithAttempts caps how often a request is tried in total.
func WithAttempts(n int) Option {
	return func(c *restClient) { c.attempts = n }
}

// NewClient builds a Client against the service's REST API at baseURL.
// The http client should carry the service account credentials.
func NewClient(baseURL string, hc *http.Client, options ...Option) Client {
	c := &restClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		hc:      hc,
		backoff: func() retry.Backoff {
			return retry.ExponentialBackoff(200*time.Millisecond, 2)
		},
		attempts: 5,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// apiEnvelope is the response wrapper of every endpoint: exactly one of
// data and error is set.
type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// noInitialDelay lets the first attempt run immediately; the backoff
// applies to retries only.
func noInitialDelay(b retry.Backoff) retry.Backoff {
	first := true
	return func(ctx context.Context) error {
		if first {
			first = false
			return nil
		}
		return b(ctx)
	}
}

// send posts the form and unwraps the response envelope. Requests
// rejected with 429 or a 5xx status are retried with backoff.
func (c *restClient) send(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	backoff := noInitialDelay(c.backoff())
	left := c.attempts

	return retry.Blocking(ctx, backoff, func() (json.RawMessage, error) {
		left -= 1
		data, err := c.post(ctx, path, form)
		if err != nil && left > 0 && isTransient(err) {
			return nil, fmt.Errorf("%w: %w", retry.ErrRetry, err)
		}
		return data, err
	})
}

type statusError struct {
	status int
	body   string
}

func (e statusError) Error() string {
	return fmt.Sprintf("unexpected response status %d: %s", e.status, e.body)
}

func isTransient(err error) bool {
	if serr, ok := err.(statusError); ok {
		return serr.status == http.StatusTooManyRequests || 500 <= serr.status
	}
	return false
}

func (c *restClient) post(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError{status: resp.StatusCode, body: string(body)}
	}

	envelope := apiEnvelope{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, xe.WrapWithNote(err, "broken response from %s", path)
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("%s rejected the request: %s", path, envelope.Error.Message)
	}
	return envelope.Data, nil
}

func (c *restClient) Value(ctx context.Context, node *expr.Node) (json.RawMessage, error) {
	serialized, err := node.Serialize()
	if err != nil {
		return nil, err
	}
	return c.send(ctx, "/value", url.Values{"json": {string(serialized)}})
}

func (c *restClient) MapID(ctx context.Context, image *expr.Node, vis VisParams) (MapID, error) {
	serialized, err := image.Serialize()
	if err != nil {
		return MapID{}, err
	}

	form := url.Values{"image": {string(serialized)}}
	if vis.Band != "" {
		form.Set("bands", vis.Band)
	}
	if vis.Min != 0 || vis.Max != 0 {
		form.Set("min", strconv.FormatFloat(vis.Min, 'f', -1, 64))
		form.Set("max", strconv.FormatFloat(vis.Max, 'f', -1, 64))
	}
	if vis.Palette != "" {
		form.Set("palette", vis.Palette)
	}

	data, err := c.send(ctx, "/mapid", form)
	if err != nil {
		return MapID{}, err
	}
	mapID := MapID{}
	if err := json.Unmarshal(data, &mapID); err != nil {
		return MapID{}, xe.WrapWithNote(err, "broken mapid response")
	}
	return mapID, nil
}

func (c *restClient) DownloadURL(ctx context.Context, image *expr.Node, spec DownloadSpec) (string, error) {
	serialized, err := image.Serialize()
	if err != nil {
		return "", err
	}

	data, err := c.send(ctx, "/download", url.Values{
		"image": {string(serialized)},
		"name":  {spec.Name},
		"scale": {strconv.Itoa(spec.Scale)},
	})
	if err != nil {
		return "", err
	}

	ticket := struct {
		DocID string `json:"docid"`
		Token string `json:"token"`
	}{}
	if err := json.Unmarshal(data, &ticket); err != nil {
		return "", xe.WrapWithNote(err, "broken download response")
	}
	return fmt.Sprintf(
		"%s/download?docid=%s&token=%s",
		c.baseURL, url.QueryEscape(ticket.DocID), url.QueryEscape(ticket.Token),
	), nil
}

func (c *restClient) NewTaskID(ctx context.Context) (string, error) {
	data, err := c.send(ctx, "/newtaskid", url.Values{"count": {"1"}})
	if err != nil {
		return "", err
	}
	ids := []string{}
	if err := json.Unmarshal(data, &ids); err != nil {
		return "", xe.WrapWithNote(err, "broken taskid response")
	}
	if len(ids) == 0 {
		return "", xe.New("the service issued no task id")
	}
	return ids[0], nil
}

func (c *restClient) StartExport(ctx context.Context, taskID string, image *expr.Node, spec ExportSpec) error {
	serialized, err := image.Serialize()
	if err != nil {
		return err
	}

	_, err = c.send(ctx, "/processingrequest", url.Values{
		"id":                  {taskID},
		"type":                {"EXPORT_IMAGE"},
		"json":                {string(serialized)},
		"description":         {spec.Description},
		"driveFileNamePrefix": {spec.FilenamePrefix},
		"scale":               {strconv.Itoa(spec.Scale)},
		"maxPixels":           {strconv.FormatFloat(spec.MaxPixels, 'f', -1, 64)},
	})
	return err
}

func (c *restClient) TaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	data, err := c.send(ctx, "/taskstatus", url.Values{"q": {taskID}})
	if err != nil {
		return TaskStatus{}, err
	}
	statuses := []TaskStatus{}
	if err := json.Unmarshal(data, &statuses); err != nil {
		return TaskStatus{}, xe.WrapWithNote(err, "broken taskstatus response")
	}
	if len(statuses) == 0 {
		return TaskStatus{TaskID: taskID, State: UnknownState}, nil
	}
	return statuses[0], nil
}

func (c *restClient) CancelTask(ctx context.Context, taskID string) error {
	_, err := c.send(ctx, "/updatetask", url.Values{
		"id":     {taskID},
		"action": {"CANCEL"},
	})
	return err
}
