package descriptor

import (
	"strings"
	"testing"
	"time"

	"github.com/GoPolymarket/extgate/internal/pkg/apperrors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ratesYAML = `
rates:
  web_service:
    base_url: https://rates.example.com/
    connect_timeout_seconds: 3
    timeout_seconds: 10
    api_key: secret-key
    headers:
      X-Client: extgate
    endpoints:
      get_rates:
        path: /v1/rates/{currency}
        api_operation: GetRates
        caching:
          should_cache: false
      list_currencies:
        path: /v1/currencies
        logging:
          responses:
            log_response_channel: billing-api
  caching:
    should_cache: true
    cache_key: rates
    cache_seconds: 300
  logging:
    should_log: true
    requests:
      should_log: true
    responses:
      should_log: true
      log_response_channel: external-api
  pruning:
    should_prune: true
    requests:
      should_prune: true
      prune_days: 7
`

func newSource(t *testing.T, doc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(doc)))
	return v
}

func TestLoadFullDescriptor(t *testing.T) {
	d, err := Load(newSource(t, ratesYAML), "rates")
	require.NoError(t, err)

	assert.Equal(t, "https://rates.example.com", d.BaseURL)
	require.NotNil(t, d.ConnectTimeout)
	assert.Equal(t, 3*time.Second, *d.ConnectTimeout)
	assert.Equal(t, 10*time.Second, *d.Timeout)
	assert.Equal(t, "secret-key", d.Credentials.APIKey)
	assert.Equal(t, DefaultAPIKeyHeader, d.Credentials.APIKeyHeader)
	assert.Empty(t, d.Credentials.Username)
	assert.Equal(t, "extgate", d.Headers.Get("X-Client"))
	assert.Equal(t, "application/json", d.Headers.Get("Accept"))

	assert.True(t, *d.Caching.ShouldCache)
	assert.Equal(t, "rates", d.Caching.Key)
	assert.Equal(t, 300*time.Second, *d.Caching.TTL)
	assert.Equal(t, "external-api", d.Logging.ResponseChannel)

	assert.True(t, d.Pruning.PruneRequests())
	assert.False(t, d.Pruning.PruneResponses())
	assert.Equal(t, 7, d.Pruning.RequestDays)
	assert.Equal(t, DefaultPruneDays, d.Pruning.ResponseDays)
}

func TestLoadEndpoints(t *testing.T) {
	d, err := Load(newSource(t, ratesYAML), "rates")
	require.NoError(t, err)
	assert.Len(t, d.EndpointNames(), 2)

	rates := d.Endpoint("get_rates")
	require.NotNil(t, rates)
	assert.Equal(t, "GetRates", rates.OperationName())
	assert.Equal(t, "GET", rates.Method)
	require.NotNil(t, rates.Caching)
	assert.False(t, *rates.Caching.ShouldCache)
	assert.Nil(t, rates.Logging)

	list := d.Endpoint("LIST_CURRENCIES")
	require.NotNil(t, list)
	assert.Equal(t, "list_currencies", list.OperationName())
	assert.Nil(t, list.Caching)
	require.NotNil(t, list.Logging)
	assert.Equal(t, "billing-api", list.Logging.ResponseChannel)
	assert.Nil(t, list.Logging.ShouldLog)
}

func TestLoadUnknownEndpointIsNil(t *testing.T) {
	d, err := Load(newSource(t, ratesYAML), "rates")
	require.NoError(t, err)
	assert.Nil(t, d.Endpoint("missing"))
}

func TestLoadMissingServiceFails(t *testing.T) {
	_, err := Load(newSource(t, ratesYAML), "billing")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrConfiguration))
}

func TestLoadMinimalServiceDefaults(t *testing.T) {
	d, err := Load(newSource(t, "billing:\n  web_service:\n    base_url: https://billing.example.com\n"), "billing")
	require.NoError(t, err)

	assert.Nil(t, d.Timeout)
	assert.Nil(t, d.ConnectTimeout)
	assert.False(t, *d.Caching.ShouldCache)
	assert.False(t, *d.Logging.ShouldLog)
	assert.False(t, d.Pruning.ShouldPrune)
	assert.Equal(t, DefaultPruneDays, d.Pruning.RequestDays)
	assert.Empty(t, d.Endpoints)
}

func TestLoadRejectsBadTypes(t *testing.T) {
	doc := `
billing:
  web_service:
    base_url: not a url
    timeout_seconds: soon
  caching:
    should_cache: maybe
`
	_, err := Load(newSource(t, doc), "billing")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrConfiguration))
	assert.Contains(t, err.Error(), "timeout_seconds")
	assert.Contains(t, err.Error(), "should_cache")
}

func TestLoadRejectsInvalidURL(t *testing.T) {
	_, err := Load(newSource(t, "billing:\n  web_service:\n    base_url: not a url\n"), "billing")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrConfiguration))
}

func TestLoadAll(t *testing.T) {
	src := newSource(t, ratesYAML)
	all, err := LoadAll(src, []string{"rates"})
	require.NoError(t, err)
	assert.Contains(t, all, "rates")

	_, err = LoadAll(src, []string{"rates", "nope"})
	assert.Error(t, err)
}
