package export

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pkoukos/stockroom/internal/datastore"
)

// ErrUnsupportedKey is returned when a storage key cannot be mapped to a
// known dataset layout.
var ErrUnsupportedKey = errors.New("invalid key format or unsupported key type")

// Service fetches stored datasets by raw key and hands them to an
// exporter. Single-dataset keys have four colon-separated fields, group
// keys three.
type Service struct {
	butler *datastore.Butler
	csv    *CSVExporter
	sender *HTTPDataSender
	log    zerolog.Logger
}

// NewService creates an export service.
func NewService(butler *datastore.Butler, csv *CSVExporter, sender *HTTPDataSender, log zerolog.Logger) *Service {
	return &Service{
		butler: butler,
		csv:    csv,
		sender: sender,
		log:    log.With().Str("component", "export_service").Logger(),
	}
}

// ExportCSV fetches the dataset at key and writes it to filepath. Group
// keys are not supported for CSV export.
func (s *Service) ExportCSV(key, filepath string) error {
	scope, ok := datastore.ParseSingleKey(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedKey, key)
	}

	table, err := s.butler.Get(scope)
	if err != nil {
		return err
	}
	if err := s.csv.Export(table, filepath); err != nil {
		return err
	}

	s.log.Info().Str("key", key).Str("filepath", filepath).Int("rows", len(table)).Msg("Dataset exported to CSV")
	return nil
}

// SendHTTP fetches the dataset (or group) at key and posts it to url.
func (s *Service) SendHTTP(ctx context.Context, key, url, method string) error {
	if scope, ok := datastore.ParseSingleKey(key); ok {
		table, err := s.butler.Get(scope)
		if err != nil {
			return err
		}
		if err := s.sender.Send(ctx, table, url, method); err != nil {
			return err
		}
		s.log.Info().Str("key", key).Str("url", url).Int("rows", len(table)).Msg("Dataset sent")
		return nil
	}

	scope, ok := parseGroupKey(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedKey, key)
	}
	tables, err := s.butler.GetGroup(scope)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return datastore.ErrDataNotFound
	}
	if err := s.sender.SendGroup(ctx, tables, url, method); err != nil {
		return err
	}
	s.log.Info().Str("key", key).Str("url", url).Int("members", len(tables)).Msg("Group sent")
	return nil
}

func parseGroupKey(key string) (datastore.GroupScope, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		return datastore.GroupScope{}, false
	}
	for _, p := range parts {
		if p == "" {
			return datastore.GroupScope{}, false
		}
	}
	return datastore.GroupScope{GroupID: parts[0], StartDate: parts[1], EndDate: parts[2]}, true
}
