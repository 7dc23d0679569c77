package voice

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/omnifm/omnifm-bot/types"
)

// StreamType is the detected framing of a remote audio feed.
type StreamType string

const (
	StreamMP3     StreamType = "mp3"
	StreamOggOpus StreamType = "ogg/opus"
	StreamAAC     StreamType = "aac"
	StreamUnknown StreamType = "unknown"
)

// StreamMeta is the station-provided metadata announced on the stream.
type StreamMeta struct {
	Name        string
	Description string
}

const probeBytes = 512

// ProbeStream sniffs the container framing from the first bytes of a feed and
// hands back a reader with those bytes stitched back on. An unreadable or
// unrecognizable feed fails with ErrStreamUnavailable.
func ProbeStream(r io.Reader) (StreamType, io.Reader, error) {
	buf := bufio.NewReaderSize(r, probeBytes)
	head, err := buf.Peek(probeBytes)
	if err != nil && len(head) < 4 {
		return StreamUnknown, nil, types.ErrStreamUnavailable
	}

	kind := sniffContainer(head)
	if kind == StreamUnknown {
		return StreamUnknown, nil, types.ErrStreamUnavailable
	}
	return kind, buf, nil
}

func sniffContainer(head []byte) StreamType {
	if len(head) < 4 {
		return StreamUnknown
	}
	switch {
	case bytes.HasPrefix(head, []byte("OggS")):
		return StreamOggOpus
	case bytes.HasPrefix(head, []byte("ID3")):
		return StreamMP3
	case head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		// MPEG frame sync. Layer bits distinguish MP3 from ADTS AAC.
		if head[1]&0xF6 == 0xF0 {
			return StreamAAC
		}
		return StreamMP3
	case bytes.HasPrefix(head, []byte("ADIF")):
		return StreamAAC
	}
	return StreamUnknown
}

// FetchStream opens a remote feed. Redirects follow; anything but a 2xx
// response is ErrStreamUnavailable.
func FetchStream(ctx context.Context, client *http.Client, rawURL string) (io.ReadCloser, http.Header, error) {
	if client == nil {
		client = &http.Client{Timeout: 0} // streams are unbounded; rely on ctx
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, types.ErrStreamUnavailable
	}
	req.Header.Set("Icy-MetaData", "1")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, types.ErrStreamUnavailable
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, nil, types.ErrStreamUnavailable
	}
	return resp.Body, resp.Header, nil
}

// FetchStreamInfo grabs the ICY headers of a feed without consuming it. Best
// effort: any failure yields empty metadata, never an error.
func FetchStreamInfo(ctx context.Context, client *http.Client, rawURL string) StreamMeta {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, header, err := FetchStream(ctx, client, rawURL)
	if err != nil {
		return StreamMeta{}
	}
	_ = body.Close()

	return StreamMeta{
		Name:        strings.TrimSpace(header.Get("icy-name")),
		Description: strings.TrimSpace(header.Get("icy-description")),
	}
}
