package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tydee/tydee-pro/internal/types"
)

const maxEventBytes = 1 << 20

// SubscribeJob opens the job's event stream. The returned channel receives every
// snapshot and is closed when ctx is done or the stream ends; callers reconnect.
func (c *Client) SubscribeJob(ctx context.Context, jobID string) (<-chan types.Job, error) {
	req, err := c.newRequest(ctx, http.MethodGet, jobPath(jobID, "/events"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer func() { _ = resp.Body.Close() }()
		return nil, decodeAPIError(resp)
	}

	out := make(chan types.Job, 1)
	go func() {
		defer close(out)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64<<10), maxEventBytes)
		var event string
		var data strings.Builder
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if event == "job" && data.Len() > 0 {
					var job types.Job
					if err := json.Unmarshal([]byte(data.String()), &job); err == nil {
						select {
						case out <- job:
						case <-ctx.Done():
							return
						}
					}
				}
				event = ""
				data.Reset()
			case strings.HasPrefix(line, ":"):
				// comment, used for keep-alives
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
		}
	}()
	return out, nil
}
