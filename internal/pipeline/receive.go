package pipeline

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

// part is one buffered multipart file field.
type part struct {
	filename    string
	contentType string
	data        []byte
}

var errTooLarge = &Error{Stage: StageReceiving, Kind: KindTooLarge, Message: "file too large"}

// receive buffers the named fields of the body. Unknown fields are skipped
// and only the first occurrence of a field is kept.
func (p *Pipeline) receive(mr *multipart.Reader, fields ...string) (map[string]*part, error) {
	if mr == nil {
		return nil, &Error{Stage: StageReceiving, Kind: KindClient, Message: "expected multipart/form-data body"}
	}

	wanted := make(map[string]bool, len(fields))
	for _, f := range fields {
		wanted[f] = true
	}

	parts := make(map[string]*part)
	for {
		mp, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, p.readError(err)
		}

		name := mp.FormName()
		if !wanted[name] || parts[name] != nil {
			_ = mp.Close()
			continue
		}

		data, err := p.readPart(mp)
		_ = mp.Close()
		if err != nil {
			return nil, err
		}

		parts[name] = &part{
			filename:    mp.FileName(),
			contentType: mp.Header.Get("Content-Type"),
			data:        data,
		}
	}

	return parts, nil
}

func (p *Pipeline) readPart(mp *multipart.Part) ([]byte, error) {
	var r io.Reader = mp
	if p.maxSize > 0 {
		r = io.LimitReader(mp, p.maxSize+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, p.readError(err)
	}
	if p.maxSize > 0 && int64(len(data)) > p.maxSize {
		return nil, errTooLarge
	}
	return data, nil
}

func (p *Pipeline) readError(err error) error {
	if kindOf(err) == KindTooLarge {
		return errTooLarge
	}
	return &Error{Stage: StageReceiving, Kind: KindClient, Message: "malformed multipart body", Err: err}
}

func validateVideo(p *part, field string) error {
	if p == nil {
		return fmt.Errorf("missing %q field", field)
	}
	if !hasMediaType(p.contentType, "video/") {
		return fmt.Errorf("invalid file type %q, expected video", p.contentType)
	}
	if len(p.data) == 0 {
		return errors.New("video file is empty")
	}
	return nil
}

// validateThumbnail accepts JPEG only, since the object is always stored
// as thumbnails/{id}.jpg.
func validateThumbnail(p *part) error {
	if !hasMediaType(p.contentType, thumbnailContentType) {
		return fmt.Errorf("invalid file type %q for thumbnail, expected %s", p.contentType, thumbnailContentType)
	}
	if len(p.data) == 0 {
		return errors.New("thumbnail file is empty")
	}
	return nil
}

func hasMediaType(contentType, prefix string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, prefix)
}
