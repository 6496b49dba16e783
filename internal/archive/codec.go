package archive

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// CompressionGzip writes batch files as .json.gz.
	CompressionGzip = "gzip"
	// CompressionNone writes batch files as plain .json.
	CompressionNone = "none"
)

// codec writes and reads batch files. Writing honors the configured
// compression; reading sniffs the filename so old batches stay readable
// after a config change.
type codec struct {
	compression string
}

func newCodec(compression string) (*codec, error) {
	switch compression {
	case CompressionGzip, CompressionNone:
		return &codec{compression: compression}, nil
	case "":
		return &codec{compression: CompressionGzip}, nil
	default:
		return nil, fmt.Errorf("unknown archive compression: %s", compression)
	}
}

// ext returns the batch filename suffix for new files.
func (c *codec) ext() string {
	if c.compression == CompressionGzip {
		return ".json.gz"
	}
	return ".json"
}

// write creates the batch file and returns its on-disk size. The file must
// not already exist; batches are additive.
func (c *codec) write(path string, data []byte) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create batch file: %w", err)
	}
	defer f.Close() //nolint:errcheck // close again after write below

	if c.compression == CompressionGzip && strings.HasSuffix(path, ".gz") {
		gw := gzip.NewWriter(f)
		if _, err := gw.Write(data); err != nil {
			return 0, fmt.Errorf("failed to write batch file: %w", err)
		}
		if err := gw.Close(); err != nil {
			return 0, fmt.Errorf("failed to finalize batch file: %w", err)
		}
	} else if _, err := f.Write(data); err != nil {
		return 0, fmt.Errorf("failed to write batch file: %w", err)
	}

	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close batch file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat batch file: %w", err)
	}
	return info.Size(), nil
}

// read loads a batch file, transparently decompressing .gz.
func (c *codec) read(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return raw, nil
	}

	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip batch file: %w", err)
	}
	defer gr.Close() //nolint:errcheck // read-only stream

	data, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress batch file: %w", err)
	}
	return data, nil
}
