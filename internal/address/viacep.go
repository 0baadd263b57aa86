package address

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shenikar/outage_reports/internal/models"
	"github.com/shenikar/outage_reports/internal/observability"
	"github.com/sirupsen/logrus"
)

// ViaCEPClient ищет район и город по бразильскому почтовому индексу через ViaCEP
type ViaCEPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
	metrics    *observability.Metrics
}

// NewViaCEPClient создает клиент. baseURL без завершающего слэша, например https://viacep.com.br/ws
func NewViaCEPClient(baseURL string, timeout time.Duration, logger *logrus.Logger, metrics *observability.Metrics) *ViaCEPClient {
	return &ViaCEPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// Lookup возвращает models.ErrAddressNotFound, если индекс неизвестен сервису
func (c *ViaCEPClient) Lookup(ctx context.Context, zipCode string) (models.Address, error) {
	zip, err := NormalizeZipCode(zipCode)
	if err != nil {
		return models.Address{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/json/", c.baseURL, zip), nil)
	if err != nil {
		return models.Address{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.AddressLookups.WithLabelValues("error").Inc()
		return models.Address{}, fmt.Errorf("address lookup request: %w", err)
	}
	defer resp.Body.Close()

	// ViaCEP отвечает 400 на синтаксически неверный индекс
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		c.metrics.AddressLookups.WithLabelValues("not_found").Inc()
		return models.Address{}, fmt.Errorf("zip code %s: %w", zip, models.ErrAddressNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.metrics.AddressLookups.WithLabelValues("error").Inc()
		return models.Address{}, fmt.Errorf("address API error: status %d: %s", resp.StatusCode, body)
	}

	var viaCEPResp response
	if err := json.NewDecoder(resp.Body).Decode(&viaCEPResp); err != nil {
		c.metrics.AddressLookups.WithLabelValues("error").Inc()
		return models.Address{}, fmt.Errorf("decode response: %w", err)
	}

	if viaCEPResp.Erro {
		c.metrics.AddressLookups.WithLabelValues("not_found").Inc()
		return models.Address{}, fmt.Errorf("zip code %s: %w", zip, models.ErrAddressNotFound)
	}

	c.metrics.AddressLookups.WithLabelValues("miss").Inc()
	c.logger.WithField("zip_code", zip).Debug("Address resolved by lookup service")
	return models.Address{
		Neighborhood: viaCEPResp.Bairro,
		City:         viaCEPResp.Localidade,
		ZipCode:      zip,
	}, nil
}

// NormalizeZipCode убирает дефис и пробелы и проверяет, что осталось ровно 8 цифр
func NormalizeZipCode(zipCode string) (string, error) {
	zip := strings.NewReplacer("-", "", " ", "", ".", "").Replace(strings.TrimSpace(zipCode))
	if len(zip) != 8 {
		return "", fmt.Errorf("%w: zip code must have 8 digits", models.ErrInvalidIncident)
	}
	for _, r := range zip {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: zip code must have 8 digits", models.ErrInvalidIncident)
		}
	}
	return zip, nil
}

// Типы ответа ViaCEP

type response struct {
	Cep        string `json:"cep"`
	Bairro     string `json:"bairro"`
	Localidade string `json:"localidade"`
	UF         string `json:"uf"`
	// ViaCEP возвращает 200 и {"erro": true} для несуществующего индекса
	Erro flexBool `json:"erro"`
}

// flexBool принимает и true, и "true": разные версии API кодируют флаг по-разному
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "true":
		*b = true
	case "false", "", "null":
		*b = false
	default:
		return fmt.Errorf("unexpected boolean value %s", data)
	}
	return nil
}
