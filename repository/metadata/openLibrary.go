package metadatarepo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"librarylend/util/httpx"
)

// Lookup is what we can learn about a book from its ISBN.
type Lookup struct {
	Title string
}

type Repo interface {
	ByISBN(ctx context.Context, isbn string) (*Lookup, error)
}

type openLibrary struct {
	base   string
	client *http.Client
}

func NewOpenLibrary() Repo {
	return &openLibrary{base: "https://openlibrary.org", client: httpx.Client()}
}

// NewOpenLibraryAt points the client at a different base URL (tests).
func NewOpenLibraryAt(base string) Repo {
	return &openLibrary{base: base, client: httpx.Client()}
}

func (r *openLibrary) ByISBN(ctx context.Context, isbn string) (*Lookup, error) {
	u := r.base + "/isbn/" + url.PathEscape(isbn) + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openlibrary isbn lookup failed: %s", resp.Status)
	}

	var out struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Title == "" {
		return nil, fmt.Errorf("openlibrary: no title for isbn %s", isbn)
	}
	return &Lookup{Title: out.Title}, nil
}
