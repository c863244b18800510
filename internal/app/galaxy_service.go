package app

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/Johnnas12/chatbot-ui-galaxy/internal/galaxy"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/model"
)

var ErrGalaxyNotConnected = errors.New("not connected to galaxy")

// ConnectionStore persists the per-user Galaxy connection state.
type ConnectionStore interface {
	Save(ctx context.Context, userID uint, conn model.GalaxyConnection) error
	Load(ctx context.Context, userID uint) (*model.GalaxyConnection, error)
	Clear(ctx context.Context, userID uint) error
	SetSelectedHistory(ctx context.Context, userID uint, historyID string) error
}

// GalaxyAPI is the remote Galaxy surface the service drives.
type GalaxyAPI interface {
	RegisterKey(ctx context.Context, baseURL, apiKey string) (string, error)
	ListHistories(ctx context.Context, conn model.GalaxyConnection) ([]model.GalaxyHistory, error)
	HistoryContents(ctx context.Context, conn model.GalaxyConnection, historyID string) (*model.GalaxyContents, error)
	CreateHistory(ctx context.Context, conn model.GalaxyConnection, name string) error
	UploadFile(ctx context.Context, conn model.GalaxyConnection, historyID string, part galaxy.UploadPart) (string, error)
	UploadCollection(ctx context.Context, conn model.GalaxyConnection, historyID string, parts []galaxy.UploadPart, collectionType, collectionName, structure string) (string, error)
	Download(ctx context.Context, conn model.GalaxyConnection, query url.Values) (*galaxy.DownloadResult, error)
}

type GalaxyService struct {
	client GalaxyAPI
	store  ConnectionStore
	logger *zap.Logger
}

func NewGalaxyService(client GalaxyAPI, store ConnectionStore, logger *zap.Logger) *GalaxyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GalaxyService{client: client, store: store, logger: logger}
}

type ConnectResult struct {
	BaseURL   string                `json:"base_url"`
	Histories []model.GalaxyHistory `json:"histories"`
	Notice    string                `json:"notice,omitempty"`
}

// Connect exchanges the API key for a bearer token and persists the
// connection. Nothing is stored on failure, including a 2xx response that
// lacks a token.
func (s *GalaxyService) Connect(ctx context.Context, userID uint, baseURL, apiKey string) (*ConnectResult, error) {
	baseURL = strings.TrimSpace(baseURL)
	apiKey = strings.TrimSpace(apiKey)
	if userID == 0 || baseURL == "" || apiKey == "" {
		return nil, ErrInvalidInput
	}

	token, err := s.client.RegisterKey(ctx, baseURL, apiKey)
	if err != nil {
		return nil, err
	}

	conn := model.GalaxyConnection{BaseURL: baseURL, APIKey: apiKey, Token: token}
	if err := s.store.Save(ctx, userID, conn); err != nil {
		return nil, err
	}

	result := &ConnectResult{BaseURL: baseURL}
	histories, err := s.client.ListHistories(ctx, conn)
	if err != nil {
		// The connection itself succeeded; surface the fetch failure as a
		// notice rather than rolling back.
		s.logger.Warn("initial histories fetch failed", zap.Error(err), zap.Uint("user_id", userID))
		result.Notice = "Failed to fetch Galaxy histories"
		return result, nil
	}
	result.Histories = histories
	return result, nil
}

// Disconnect clears the stored connection; no remote call is made.
func (s *GalaxyService) Disconnect(ctx context.Context, userID uint) error {
	if userID == 0 {
		return ErrInvalidInput
	}
	return s.store.Clear(ctx, userID)
}

type GalaxyStatus struct {
	Connected         bool   `json:"connected"`
	BaseURL           string `json:"base_url,omitempty"`
	SelectedHistoryID string `json:"selected_history_id,omitempty"`
}

func (s *GalaxyService) Status(ctx context.Context, userID uint) (*GalaxyStatus, error) {
	conn, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return &GalaxyStatus{Connected: false}, nil
	}
	return &GalaxyStatus{
		Connected:         true,
		BaseURL:           conn.BaseURL,
		SelectedHistoryID: conn.SelectedHistoryID,
	}, nil
}

func (s *GalaxyService) Histories(ctx context.Context, userID uint) ([]model.GalaxyHistory, error) {
	conn, err := s.connection(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.client.ListHistories(ctx, *conn)
}

// CreateHistory creates the remote history, then re-fetches the list so the
// caller sees the new entry.
func (s *GalaxyService) CreateHistory(ctx context.Context, userID uint, name string) ([]model.GalaxyHistory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}
	conn, err := s.connection(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.client.CreateHistory(ctx, *conn, name); err != nil {
		return nil, err
	}
	return s.client.ListHistories(ctx, *conn)
}

func (s *GalaxyService) HistoryContents(ctx context.Context, userID uint, historyID string) (*model.GalaxyContents, error) {
	if historyID == "" {
		return nil, ErrInvalidInput
	}
	conn, err := s.connection(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.client.HistoryContents(ctx, *conn, historyID)
}

// SelectHistory records the selection and fetches the contents in one step.
func (s *GalaxyService) SelectHistory(ctx context.Context, userID uint, historyID string) (*model.GalaxyContents, error) {
	contents, err := s.HistoryContents(ctx, userID, historyID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetSelectedHistory(ctx, userID, historyID); err != nil {
		s.logger.Warn("persist selected history failed", zap.Error(err), zap.Uint("user_id", userID))
	}
	return contents, nil
}

// UploadFile streams one file into a history and returns the refreshed
// contents alongside the server's message.
func (s *GalaxyService) UploadFile(ctx context.Context, userID uint, historyID, filename string, content io.Reader) (string, *model.GalaxyContents, error) {
	if historyID == "" || filename == "" {
		return "", nil, ErrInvalidInput
	}
	conn, err := s.connection(ctx, userID)
	if err != nil {
		return "", nil, err
	}

	message, err := s.client.UploadFile(ctx, *conn, historyID, galaxy.UploadPart{Filename: filename, Content: content})
	if err != nil {
		return "", nil, err
	}

	contents, err := s.client.HistoryContents(ctx, *conn, historyID)
	if err != nil {
		s.logger.Warn("contents refresh after upload failed", zap.Error(err), zap.Uint("user_id", userID))
		contents = nil
	}
	return message, contents, nil
}

func (s *GalaxyService) UploadCollection(
	ctx context.Context,
	userID uint,
	historyID string,
	parts []galaxy.UploadPart,
	collectionType, collectionName, structure string,
) (string, *model.GalaxyContents, error) {
	if historyID == "" || len(parts) == 0 || collectionName == "" {
		return "", nil, ErrInvalidInput
	}
	conn, err := s.connection(ctx, userID)
	if err != nil {
		return "", nil, err
	}

	message, err := s.client.UploadCollection(ctx, *conn, historyID, parts, collectionType, collectionName, structure)
	if err != nil {
		return "", nil, err
	}

	contents, err := s.client.HistoryContents(ctx, *conn, historyID)
	if err != nil {
		s.logger.Warn("contents refresh after upload failed", zap.Error(err), zap.Uint("user_id", userID))
		contents = nil
	}
	return message, contents, nil
}

// DownloadDataset and DownloadCollection stream an artifact blob. The
// caller owns the returned body.
func (s *GalaxyService) DownloadDataset(ctx context.Context, userID uint, datasetID string) (*galaxy.DownloadResult, error) {
	return s.download(ctx, userID, url.Values{"dataset_ids": {datasetID}})
}

func (s *GalaxyService) DownloadCollection(ctx context.Context, userID uint, collectionID string) (*galaxy.DownloadResult, error) {
	return s.download(ctx, userID, url.Values{"collection_ids": {collectionID}})
}

func (s *GalaxyService) download(ctx context.Context, userID uint, query url.Values) (*galaxy.DownloadResult, error) {
	conn, err := s.connection(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.client.Download(ctx, *conn, query)
}

// connection loads the stored credentials; every Galaxy operation requires
// one and fails cleanly without it.
func (s *GalaxyService) connection(ctx context.Context, userID uint) (*model.GalaxyConnection, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	conn, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conn == nil || conn.Token == "" || conn.BaseURL == "" {
		return nil, ErrGalaxyNotConnected
	}
	return conn, nil
}
