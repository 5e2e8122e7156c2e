// Package clients provides typed read clients for Model-Manager (plant
// registry, model metadata, artifact bytes) and Open-Meteo (weather
// forecasts). Both follow the teacher's adapter construction style:
// context-aware requests, tuned transports, bounded error bodies, and
// fmt.Errorf("...: %w", err) wrapping throughout.
package clients

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sunwatt/forecaster/pkg/domain"
)

// maxArtifactBytes bounds a single artifact download; artifacts are
// WebAssembly modules and companion archives, not multi-gigabyte blobs.
const maxArtifactBytes = 64 << 20 // 64 MiB

// ModelManagerClient reads the plant/model registry and model artifacts
// from the Model-Manager service.
type ModelManagerClient struct {
	baseURL string
	http    *http.Client
}

// NewModelManagerClient creates a client against baseURL. If tlsConfig is
// non-nil, outbound connections use it (mirrors httpx.NewClient's optional
// mTLS wiring).
func NewModelManagerClient(baseURL string, timeout time.Duration, tlsConfig *tls.Config) *ModelManagerClient {
	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConnsPerHost: 4,
		TLSClientConfig:     tlsConfig,
	}

	return &ModelManagerClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

type plantDTO struct {
	ID        int      `json:"id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Capacity  *float64 `json:"capacity"`
}

func (p plantDTO) toDomain() domain.Plant {
	return domain.Plant{
		ID:        p.ID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Capacity:  p.Capacity,
	}
}

type modelMetadataDTO struct {
	ID        int      `json:"id"`
	PlantID   int      `json:"plant_id"`
	Features  []string `json:"features"`
	FileType  string   `json:"file_type"`
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	PlantName string   `json:"plant_name"`
	IsActive  bool     `json:"is_active"`
}

func (m modelMetadataDTO) toDomain() domain.ModelMetadata {
	return domain.ModelMetadata{
		ID:        m.ID,
		PlantID:   m.PlantID,
		Features:  m.Features,
		FileType:  domain.FileType(m.FileType),
		Name:      m.Name,
		Version:   m.Version,
		PlantName: m.PlantName,
		IsActive:  m.IsActive,
	}
}

// ActivePlants fetches every plant currently flagged active.
func (c *ModelManagerClient) ActivePlants(ctx context.Context) ([]domain.Plant, error) {
	var dtos []plantDTO
	if err := c.getJSON(ctx, "/internal/power-plant/active", &dtos); err != nil {
		return nil, fmt.Errorf("fetch active plants: %w", err)
	}

	plants := make([]domain.Plant, 0, len(dtos))
	for _, d := range dtos {
		plants = append(plants, d.toDomain())
	}
	return plants, nil
}

// ActiveModels fetches every model currently flagged active, across all plants.
func (c *ModelManagerClient) ActiveModels(ctx context.Context) ([]domain.ModelMetadata, error) {
	var dtos []modelMetadataDTO
	if err := c.getJSON(ctx, "/internal/models/active", &dtos); err != nil {
		return nil, fmt.Errorf("fetch active models: %w", err)
	}

	models := make([]domain.ModelMetadata, 0, len(dtos))
	for _, d := range dtos {
		models = append(models, d.toDomain())
	}
	return models, nil
}

// ModelsForPlant fetches every model bound to a given plant.
func (c *ModelManagerClient) ModelsForPlant(ctx context.Context, plantID int) ([]domain.ModelMetadata, error) {
	var dtos []modelMetadataDTO
	path := "/power_plant/" + strconv.Itoa(plantID) + "/models"
	if err := c.getJSON(ctx, path, &dtos); err != nil {
		return nil, fmt.Errorf("fetch models for plant %d: %w", plantID, err)
	}

	models := make([]domain.ModelMetadata, 0, len(dtos))
	for _, d := range dtos {
		models = append(models, d.toDomain())
	}
	return models, nil
}

// Model fetches a single model's metadata by ID.
func (c *ModelManagerClient) Model(ctx context.Context, modelID int) (domain.ModelMetadata, error) {
	var dto modelMetadataDTO
	path := "/models/" + strconv.Itoa(modelID)
	if err := c.getJSON(ctx, path, &dto); err != nil {
		return domain.ModelMetadata{}, fmt.Errorf("fetch model %d: %w", modelID, err)
	}
	return dto.toDomain(), nil
}

// DownloadArtifact fetches the raw serialized artifact bytes for a model.
func (c *ModelManagerClient) DownloadArtifact(ctx context.Context, modelID int) ([]byte, error) {
	path := "/internal/models/" + strconv.Itoa(modelID) + "/download"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download artifact %d: %w", modelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("download artifact %d: http %d: %s", modelID, resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read artifact %d body: %w", modelID, err)
	}
	if len(data) > maxArtifactBytes {
		return nil, fmt.Errorf("artifact %d exceeds max size of %d bytes", modelID, maxArtifactBytes)
	}

	return data, nil
}

func (c *ModelManagerClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
