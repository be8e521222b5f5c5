package descriptor

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/GoPolymarket/extgate/internal/config"
	"github.com/GoPolymarket/extgate/internal/pkg/apperrors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
)

var validate = validator.New()

// Load reads the descriptor stored under configKey. It fails with a
// configuration error when the key is absent, or when any present value has
// the wrong type or is out of range. Absent scalar values stay zero.
func Load(src config.Source, configKey string) (*Descriptor, error) {
	configKey = strings.TrimSpace(configKey)
	if configKey == "" || !src.IsSet(configKey) {
		return nil, apperrors.NewConfiguration(fmt.Sprintf("no configuration found for service %q", configKey), nil)
	}

	r := &reader{src: src}
	ws := configKey + ".web_service"

	d := &Descriptor{
		Key:            configKey,
		BaseURL:        strings.TrimRight(r.str(ws+".base_url"), "/"),
		ConnectTimeout: r.seconds(ws + ".connect_timeout_seconds"),
		Timeout:        r.seconds(ws + ".timeout_seconds"),
		Credentials: Credentials{
			Username:     r.str(ws + ".username"),
			Password:     r.str(ws + ".password"),
			APIKey:       r.str(ws + ".api_key"),
			APIKeyHeader: r.str(ws + ".api_key_header"),
		},
		Headers:           defaultHeaders(),
		AcceptContentType: r.str(ws + ".accept_content_type"),
		Endpoints:         make(map[string]*EndpointSpec),
	}
	if d.Credentials.APIKeyHeader == "" {
		d.Credentials.APIKeyHeader = DefaultAPIKeyHeader
	}
	if d.AcceptContentType == "" {
		d.AcceptContentType = DefaultContentType
	}
	d.Headers.Set("Accept", d.AcceptContentType)
	for name, value := range r.strMap(ws + ".headers") {
		d.Headers.Set(name, value)
	}

	// The service level is where a concern is opted into, so an absent flag
	// there resolves to false rather than inheriting.
	d.Caching = r.cache(configKey + ".caching")
	if d.Caching.ShouldCache == nil {
		d.Caching.ShouldCache = boolPtr(false)
	}
	d.Logging = r.logging(configKey + ".logging")
	if d.Logging.ShouldLog == nil {
		d.Logging.ShouldLog = boolPtr(false)
	}
	if d.Logging.ShouldLogRequests == nil {
		d.Logging.ShouldLogRequests = boolPtr(false)
	}
	if d.Logging.ShouldLogResponses == nil {
		d.Logging.ShouldLogResponses = boolPtr(false)
	}
	d.Pruning = r.pruning(configKey + ".pruning")

	for _, name := range r.keys(ws + ".endpoints") {
		d.Endpoints[name] = r.endpoint(ws+".endpoints."+name, name)
	}

	if len(r.errs) > 0 {
		return nil, apperrors.NewConfiguration(fmt.Sprintf("invalid configuration for service %q", configKey), errors.Join(r.errs...))
	}
	if err := validate.Struct(d); err != nil {
		return nil, apperrors.NewConfiguration(fmt.Sprintf("invalid configuration for service %q", configKey), err)
	}
	return d, nil
}

// LoadAll loads every descriptor in keys, stopping at the first failure.
func LoadAll(src config.Source, keys []string) (map[string]*Descriptor, error) {
	out := make(map[string]*Descriptor, len(keys))
	for _, key := range keys {
		d, err := Load(src, key)
		if err != nil {
			return nil, err
		}
		out[d.Key] = d
	}
	return out, nil
}

func defaultHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", DefaultContentType)
	h.Set("Accept", DefaultContentType)
	return h
}

func boolPtr(b bool) *bool { return &b }

// reader converts raw source values and collects every conversion error so
// a broken config is reported in one go.
type reader struct {
	src  config.Source
	errs []error
}

func (r *reader) raw(key string) (any, bool) {
	if !r.src.IsSet(key) {
		return nil, false
	}
	v := r.src.Get(key)
	if v == nil {
		return nil, false
	}
	return v, true
}

func (r *reader) fail(key string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
}

func (r *reader) str(key string) string {
	v, ok := r.raw(key)
	if !ok {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		r.fail(key, err)
		return ""
	}
	return strings.TrimSpace(s)
}

func (r *reader) optBool(key string) *bool {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		r.fail(key, err)
		return nil
	}
	return &b
}

func (r *reader) optInt(key string) (int, bool) {
	v, ok := r.raw(key)
	if !ok {
		return 0, false
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		r.fail(key, err)
		return 0, false
	}
	return n, true
}

func (r *reader) seconds(key string) *time.Duration {
	n, ok := r.optInt(key)
	if !ok {
		return nil
	}
	if n < 0 {
		r.fail(key, fmt.Errorf("must not be negative, got %d", n))
		return nil
	}
	d := time.Duration(n) * time.Second
	return &d
}

func (r *reader) strMap(key string) map[string]string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	m, err := cast.ToStringMapStringE(v)
	if err != nil {
		r.fail(key, err)
		return nil
	}
	return m
}

func (r *reader) strSlice(key string) []string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	s, err := cast.ToStringSliceE(v)
	if err != nil {
		r.fail(key, err)
		return nil
	}
	return s
}

func (r *reader) keys(key string) []string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		r.fail(key, err)
		return nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)
	return names
}

func (r *reader) cache(prefix string) CacheSettings {
	return CacheSettings{
		ShouldCache: r.optBool(prefix + ".should_cache"),
		Key:         r.str(prefix + ".cache_key"),
		TTL:         r.seconds(prefix + ".cache_seconds"),
	}
}

func (r *reader) logging(prefix string) LogSettings {
	return LogSettings{
		ShouldLog:          r.optBool(prefix + ".should_log"),
		ShouldLogRequests:  r.optBool(prefix + ".requests.should_log"),
		ShouldLogResponses: r.optBool(prefix + ".responses.should_log"),
		ResponseChannel:    r.str(prefix + ".responses.log_response_channel"),
		RequestStore:       r.str(prefix + ".requests.store"),
		ResponseStore:      r.str(prefix + ".responses.store"),
		RedactKeys:         r.strSlice(prefix + ".redact_keys"),
	}
}

func (r *reader) pruning(prefix string) PruneSettings {
	p := PruneSettings{
		RequestDays:  DefaultPruneDays,
		ResponseDays: DefaultPruneDays,
	}
	if b := r.optBool(prefix + ".should_prune"); b != nil {
		p.ShouldPrune = *b
	}
	if b := r.optBool(prefix + ".requests.should_prune"); b != nil {
		p.ShouldPruneRequests = *b
	}
	if b := r.optBool(prefix + ".responses.should_prune"); b != nil {
		p.ShouldPruneResponses = *b
	}
	if n, ok := r.optInt(prefix + ".requests.prune_days"); ok {
		p.RequestDays = n
	}
	if n, ok := r.optInt(prefix + ".responses.prune_days"); ok {
		p.ResponseDays = n
	}
	return p
}

func (r *reader) endpoint(prefix, name string) *EndpointSpec {
	e := &EndpointSpec{
		Name:      name,
		Path:      r.str(prefix + ".path"),
		Method:    strings.ToUpper(r.str(prefix + ".method")),
		Operation: r.str(prefix + ".api_operation"),
	}
	if e.Method == "" {
		e.Method = http.MethodGet
	}
	if r.src.IsSet(prefix + ".caching") {
		c := r.cache(prefix + ".caching")
		e.Caching = &c
	}
	if r.src.IsSet(prefix + ".logging") {
		l := r.logging(prefix + ".logging")
		e.Logging = &l
	}
	return e
}
