package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"log-governor/internal/domain"
)

// EdgeConfigStorage implementa domain.KVStorage sobre um serviço edge-config
// HTTP GET/PATCH com bearer auth; 404 é tratado como ausência, não como erro
// O backend não suporta TTL por item; o TTL recebido é ignorado
type EdgeConfigStorage struct {
	baseURL  string
	configID string
	token    string
	client   *http.Client
	logger   domain.Logger
}

// edgeConfigItem é o formato de escrita aceito pelo endpoint PATCH
type edgeConfigItem struct {
	Operation string `json:"operation"`
	Key       string `json:"key"`
	Value     string `json:"value,omitempty"`
}

// edgeConfigPatch é o corpo do PATCH de itens
type edgeConfigPatch struct {
	Items []edgeConfigItem `json:"items"`
}

// NewEdgeConfigStorage cria uma nova instância do EdgeConfigStorage
func NewEdgeConfigStorage(cfg *domain.StorageConfig, logger domain.Logger) (*EdgeConfigStorage, error) {
	if cfg.EdgeConfigID == "" || cfg.EdgeConfigToken == "" {
		return nil, fmt.Errorf("edge config requires id and token")
	}

	baseURL := cfg.EdgeConfigURL
	if baseURL == "" {
		baseURL = "https://edge-config.vercel.com"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid edge config url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &EdgeConfigStorage{
		baseURL:  baseURL,
		configID: cfg.EdgeConfigID,
		token:    cfg.EdgeConfigToken,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}, nil
}

// Get recupera o valor de uma chave; 404 é uma ausência semântica
func (e *EdgeConfigStorage) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()

	endpoint := fmt.Sprintf("%s/%s/item/%s", e.baseURL, e.configID, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		e.logOperation("GET", key, start, err)
		return "", false, nil
	}
	req.Header.Set("Authorization", "Bearer "+e.token)

	resp, err := e.client.Do(req)
	if err != nil {
		e.logOperation("GET", key, start, err)
		if e.logger != nil {
			e.logger.Warn("Edge config read degraded to miss", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return "", false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		e.logOperation("GET", key, start, nil)
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("edge config returned status %d", resp.StatusCode)
		e.logOperation("GET", key, start, err)
		if e.logger != nil {
			e.logger.Warn("Edge config read degraded to miss", map[string]interface{}{
				"key":    key,
				"status": resp.StatusCode,
			})
		}
		return "", false, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e.logOperation("GET", key, start, err)
		return "", false, nil
	}

	// O serviço devolve o valor como string JSON
	var value string
	if err := json.Unmarshal(body, &value); err != nil {
		// Valor não-string armazenado fora deste cliente; devolve o corpo cru
		value = string(body)
	}

	e.logOperation("GET", key, start, nil)
	return value, true, nil
}

// Set grava um valor; o TTL é ignorado pelo backend
func (e *EdgeConfigStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return e.patch(ctx, "SET", key, edgeConfigItem{
		Operation: "upsert",
		Key:       key,
		Value:     value,
	})
}

// Delete remove uma chave
func (e *EdgeConfigStorage) Delete(ctx context.Context, key string) error {
	return e.patch(ctx, "DELETE", key, edgeConfigItem{
		Operation: "delete",
		Key:       key,
	})
}

// Exists verifica se uma chave está presente
func (e *EdgeConfigStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := e.Get(ctx, key)
	return ok, err
}

// Type identifica o backend
func (e *EdgeConfigStorage) Type() domain.StorageType {
	return domain.EdgeConfigStorageType
}

// Health verifica se o serviço responde
func (e *EdgeConfigStorage) Health(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/%s/items", e.baseURL, e.configID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+e.token)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("edge config health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("edge config unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Close libera recursos do cliente HTTP
func (e *EdgeConfigStorage) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// patch envia uma operação de escrita; falhas propagam depois de registradas
func (e *EdgeConfigStorage) patch(ctx context.Context, operation, key string, item edgeConfigItem) error {
	start := time.Now()

	payload, err := json.Marshal(edgeConfigPatch{Items: []edgeConfigItem{item}})
	if err != nil {
		e.logOperation(operation, key, start, err)
		return fmt.Errorf("failed to marshal edge config patch: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/items", e.baseURL, e.configID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		e.logOperation(operation, key, start, err)
		return fmt.Errorf("failed to build edge config request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.logOperation(operation, key, start, err)
		return fmt.Errorf("edge config write failed for key %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		err := fmt.Errorf("edge config write returned status %d for key %s", resp.StatusCode, key)
		e.logOperation(operation, key, start, err)
		return err
	}

	e.logOperation(operation, key, start, nil)
	return nil
}

// logOperation registra operações de storage
func (e *EdgeConfigStorage) logOperation(operation, key string, start time.Time, err error) {
	if e.logger == nil {
		return
	}

	latency := time.Since(start).Seconds() * 1000
	if err != nil {
		e.logger.Error("Storage operation failed", err, map[string]interface{}{
			"backend":   "edge-config",
			"operation": operation,
			"key":       key,
			"latency":   latency,
		})
		return
	}
	e.logger.Debug("Storage operation completed", map[string]interface{}{
		"backend":   "edge-config",
		"operation": operation,
		"key":       key,
		"latency":   latency,
	})
}
