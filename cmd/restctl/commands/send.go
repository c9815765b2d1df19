package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/restkit/async"
	"github.com/kbukum/restkit/core"
	"github.com/kbukum/restkit/errors"
	"github.com/kbukum/restkit/rest"
)

type sendFlags struct {
	policy     string
	timeout    time.Duration
	retries    int
	data       []string
	query      []string
	headers    []string
	eventually bool
	capture    bool
}

func newSendCmd(global *GlobalFlags) *cobra.Command {
	f := &sendFlags{}
	cmd := &cobra.Command{
		Use:   "send METHOD ENDPOINT",
		Short: "Send a request",
		Long: `Send a request to an endpoint of the configured base URL.

Examples:
  # Read through the cache
  restctl send GET books/42 --policy cache_else_network

  # Create a resource
  restctl send POST books --data title=Dune --data year=1965

  # Queue a request until it is delivered
  restctl send DELETE books/42 --eventually

  # Log in and keep the session token
  restctl send POST login --data user=alice --data password=secret --capture-session`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.requestOptions()
			if err != nil {
				return err
			}
			method := rest.Method(strings.ToUpper(args[0]))
			if !method.Valid() {
				return fmt.Errorf("unsupported method %q", args[0])
			}
			return withClient(cmd, global, func(ctx context.Context, c *core.Client) error {
				req, err := c.Request(method, args[1], opts...)
				if err != nil {
					return err
				}
				var fut *async.Future[*rest.Response]
				if f.eventually {
					fut = c.SendEventually(ctx, req)
				} else {
					fut = c.Send(ctx, req)
				}
				resp, err := fut.Await(ctx)
				if err != nil {
					return err
				}
				if f.capture {
					if err := c.CaptureSession(ctx, resp); err != nil {
						return err
					}
				}
				if err := printOutput(cmd.OutOrStdout(), global.Output, newResponseView(resp), false, "", newResponseView(resp)); err != nil {
					return err
				}
				return resp.Err
			})
		},
	}
	cmd.Flags().StringVar(&f.policy, "policy", rest.DefaultCachePolicy.String(), "cache policy")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "attempt timeout (default: runner default)")
	cmd.Flags().IntVar(&f.retries, "retries", 0, "retry a timed-out attempt this many times")
	cmd.Flags().StringArrayVarP(&f.data, "data", "d", nil, "body field as key=value; JSON values are decoded")
	cmd.Flags().StringArrayVarP(&f.query, "query", "q", nil, "query parameter as key=value")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "header as key=value")
	cmd.Flags().BoolVar(&f.eventually, "eventually", false, "queue the request durably until it is delivered")
	cmd.Flags().BoolVar(&f.capture, "capture-session", false, "store the session token carried by the response")
	return cmd
}

func (f *sendFlags) requestOptions() ([]rest.Option, error) {
	policy, err := rest.ParseCachePolicy(f.policy)
	if err != nil {
		return nil, err
	}
	opts := []rest.Option{rest.WithCachePolicy(policy)}
	if f.timeout > 0 {
		opts = append(opts, rest.WithTimeout(f.timeout))
	}
	if f.retries > 0 {
		opts = append(opts, rest.WithTimeoutPolicy(rest.TimeoutRetry, f.retries))
	}

	if len(f.data) > 0 {
		body := make(map[string]any, len(f.data))
		for _, kv := range f.data {
			k, v, err := splitKV(kv)
			if err != nil {
				return nil, err
			}
			body[k] = decodeValue(v)
		}
		opts = append(opts, rest.WithBody(body))
	}
	for _, kv := range f.query {
		k, v, err := splitKV(kv)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rest.WithQuery(k, v))
	}
	for _, kv := range f.headers {
		k, v, err := splitKV(kv)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rest.WithHeader(k, v))
	}
	return opts, nil
}

func splitKV(s string) (string, string, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", s)
	}
	return k, v, nil
}

// decodeValue turns JSON literals into values and keeps anything else as a
// string.
func decodeValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

// responseView is the printable form of a response.
type responseView struct {
	ID     string `json:"id" yaml:"id"`
	Method string `json:"method" yaml:"method"`
	URL    string `json:"url" yaml:"url"`
	Status int    `json:"status" yaml:"status"`
	Source string `json:"source" yaml:"source"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
	Code   string `json:"code,omitempty" yaml:"code,omitempty"`
	Data   any    `json:"data,omitempty" yaml:"data,omitempty"`
}

func newResponseView(resp *rest.Response) *responseView {
	v := &responseView{
		Status: resp.StatusCode,
		Source: resp.Source.String(),
		Data:   resp.Data,
	}
	if resp.Request != nil {
		v.ID = resp.Request.ID()
		v.Method = string(resp.Request.Method())
		v.URL = resp.Request.URL()
	}
	if resp.Err != nil {
		v.Error = resp.Err.Error()
		v.Code = string(errors.CodeOf(resp.Err))
	}
	if _, raw := v.Data.([]byte); raw {
		v.Data = string(resp.RawBody)
	}
	return v
}

func (v *responseView) Headers() []string { return kvTable{}.Headers() }

func (v *responseView) Rows() [][]string {
	t := kvTable{
		{"id", v.ID},
		{"request", v.Method + " " + v.URL},
		{"status", strconv.Itoa(v.Status)},
		{"source", v.Source},
	}
	if v.Error != "" {
		t = append(t, [2]string{"error", v.Code + ": " + v.Error})
	}
	if v.Data != nil {
		body, err := json.Marshal(v.Data)
		if err != nil {
			body = []byte(fmt.Sprint(v.Data))
		}
		t = append(t, [2]string{"data", string(body)})
	}
	return t.Rows()
}
