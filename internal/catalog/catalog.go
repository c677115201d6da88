// Package catalog imports loan items from a JSON document.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"

	"lendingledger/internal/model"
	"lendingledger/internal/repository"
)

// Entry is one catalog record as found in the source document.
type Entry struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Result counts what Apply did.
type Result struct {
	Created int
	Updated int
	Skipped int
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Load reads entries from a local file, or fetches them when source is an
// http(s) URL.
func Load(ctx context.Context, source string) ([]Entry, error) {
	var (
		body []byte
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		body, err = fetch(ctx, source)
	} else {
		body, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, err
	}
	return Parse(body)
}

// Parse decodes a JSON array of entries.
func Parse(body []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return entries, nil
}

func fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog source returned status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// Apply creates missing items and refreshes the description of existing ones
// in a single transaction. Holders are never touched. Entries without an id
// or description are skipped.
func Apply(ctx context.Context, items repository.LoanItemRepository, entries []Entry) (Result, error) {
	var res Result
	err := items.WithTransaction(ctx, func(ctx context.Context, repo repository.LoanItemRepository) error {
		res = Result{}
		for _, e := range entries {
			if e.ID == "" || e.Description == "" {
				res.Skipped++
				continue
			}

			existing, err := repo.FindByID(ctx, e.ID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("error checking loan item %s: %w", e.ID, err)
			}

			if existing != nil {
				if existing.Description != e.Description {
					if err := repo.UpdateDescription(ctx, e.ID, e.Description); err != nil {
						return fmt.Errorf("error updating loan item %s: %w", e.ID, err)
					}
				}
				res.Updated++
				continue
			}

			if err := repo.Create(ctx, &model.LoanItem{ID: e.ID, Description: e.Description}); err != nil {
				return fmt.Errorf("error creating loan item %s: %w", e.ID, err)
			}
			res.Created++
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}
