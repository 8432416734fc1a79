package kipris

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/config"
	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/models"
)

const testKey = "XEOu+key=="

const wordSearchXML = `<?xml version="1.0" encoding="UTF-8"?>
<response>
  <header><resultCode>00</resultCode></header>
  <body>
    <items>
      <item>
        <applicationNumber>10-2020-0012345</applicationNumber>
        <inventionTitle> 인공지능 기반 특허 검색 시스템 </inventionTitle>
        <applicantName>주식회사 예시</applicantName>
        <registerStatus>등록</registerStatus>
        <openNumber></openNumber>
        <astrtCont>   </astrtCont>
      </item>
      <item>
        <applicationNumber>1020190099999</applicationNumber>
        <inventionTitle>두 번째 결과</inventionTitle>
      </item>
    </items>
  </body>
</response>`

const citedXML = `<response><body><items>
  <citationInfoV2><applicationNumber>1020150001111</applicationNumber></citationInfoV2>
  <citationInfoV2><standardStatusCode>A</standardStatusCode></citationInfoV2>
  <citationInfoV2><applicationNumber>US14000222</applicationNumber></citationInfoV2>
</items></body></response>`

const citingXML = `<response><body><items>
  <citingInfo><applicationNumber>1020220005555</applicationNumber></citingInfo>
</items></body></response>`

const familyXML = `<response><body><items>
  <item><applicationCountryCode>US</applicationCountryCode><applicationNumber>17/123,456</applicationNumber></item>
  <item><applicationCountryCode>JP</applicationCountryCode><applicationNumber>2021-000111</applicationNumber></item>
  <item><applicationCountryCode>US</applicationCountryCode><applicationNumber>17/123,456</applicationNumber></item>
</items></body></response>`

const emptyXML = `<response><header><resultCode>00</resultCode></header><body><items/></body></response>`

type registryStub struct {
	t        *testing.T
	requests atomic.Int32
	word     func(w http.ResponseWriter, r *http.Request)
}

func (s *registryStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	q := r.URL.Query()
	switch r.URL.Path {
	case "/word":
		assert.Equal(s.t, testKey, q.Get("ServiceKey"))
		if s.word != nil {
			s.word(w, r)
			return
		}
		w.Write([]byte(wordSearchXML))
	case "/cited":
		assert.Equal(s.t, testKey, q.Get("accessKey"))
		assert.Equal(s.t, "1020200012345", q.Get("applicationNumber"))
		w.Write([]byte(citedXML))
	case "/citing":
		assert.Equal(s.t, testKey, q.Get("accessKey"))
		assert.Equal(s.t, "1020200012345", q.Get("standardCitationApplicationNumber"))
		w.Write([]byte(citingXML))
	case "/family":
		assert.Equal(s.t, testKey, q.Get("ServiceKey"))
		assert.Equal(s.t, "1020200012345", q.Get("applicationNumber"))
		w.Write([]byte(familyXML))
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, parallel bool) *Client {
	t.Helper()
	c, err := NewClient(config.Registry{
		ServiceKey: testKey,
		Timeout:    2 * time.Second,
		Parallel:   parallel,
		WordSearch: srv.URL + "/word",
		Cited:      srv.URL + "/cited",
		Citing:     srv.URL + "/citing",
		Family:     srv.URL + "/family",
	}, tracenoop.NewTracerProvider().Tracer("test"), zap.NewNop().Sugar(), metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return c
}

func TestIsApplicationNumber(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"10-2020-0012345", true},
		{"1020200012345", true},
		{"12", true},
		{"1", false},
		{"-102020", false},
		{"102020-", false},
		{"10-2020-00123a5", false},
		{"특허 검색", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, IsApplicationNumber(tt.query))
		})
	}
}

func TestResolveNumericQuerySkipsRegistry(t *testing.T) {
	stub := &registryStub{t: t}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	got, err := newTestClient(t, srv, false).Resolve(context.Background(), "10-2020-0012345")
	require.NoError(t, err)
	assert.Equal(t, "1020200012345", got)
	assert.Equal(t, int32(0), stub.requests.Load())
}

func TestResolveTakesFirstSearchHit(t *testing.T) {
	stub := &registryStub{t: t, word: func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "검색기술 특허", r.URL.Query().Get("word"))
		w.Write([]byte(wordSearchXML))
	}}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	got, err := newTestClient(t, srv, false).Resolve(context.Background(), "검색기술 특허")
	require.NoError(t, err)
	assert.Equal(t, "1020200012345", got)
}

func TestResolveNotFound(t *testing.T) {
	tests := []struct {
		name    string
		handler func(w http.ResponseWriter, r *http.Request)
	}{
		{"no item", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(emptyXML)) }},
		{"http error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"not xml", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("<response><unclosed>")) }},
		{"item without number", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<response><items><item><inventionTitle>x</inventionTitle></item></items></response>`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(&registryStub{t: t, word: tt.handler})
			defer srv.Close()

			_, err := newTestClient(t, srv, false).Resolve(context.Background(), "없는 기술")
			require.ErrorIs(t, err, models.ErrNotFound)
		})
	}
}

func TestBasicInfoKeepsNonEmptyFieldsOfFirstItem(t *testing.T) {
	srv := httptest.NewServer(&registryStub{t: t})
	defer srv.Close()

	info := newTestClient(t, srv, false).BasicInfo(context.Background(), "1020200012345")
	assert.Equal(t, models.BasicInfo{
		"applicationNumber": "10-2020-0012345",
		"inventionTitle":    "인공지능 기반 특허 검색 시스템",
		"applicantName":     "주식회사 예시",
		"registerStatus":    "등록",
	}, info)
}

func TestBasicInfoMissingItemIsNil(t *testing.T) {
	srv := httptest.NewServer(&registryStub{t: t, word: func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(emptyXML))
	}})
	defer srv.Close()

	assert.Nil(t, newTestClient(t, srv, false).BasicInfo(context.Background(), "1020200012345"))
}

func TestFetchAll(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		srv := httptest.NewServer(&registryStub{t: t})

		r := newTestClient(t, srv, parallel).FetchAll(context.Background(), "1020200012345")
		srv.Close()

		assert.Equal(t, "인공지능 기반 특허 검색 시스템", r.BasicInfo["inventionTitle"])
		assert.Equal(t, []models.CitationRef{"1020150001111", "", "US14000222"}, r.Cited)
		assert.Equal(t, []models.CitationRef{"1020220005555"}, r.Citing)
		assert.Equal(t, []models.FamilyMember{
			{Country: "US", AppNumber: "17/123,456"},
			{Country: "JP", AppNumber: "2021-000111"},
			{Country: "US", AppNumber: "17/123,456"},
		}, r.Family)
	}
}

func TestFetchAllToleratesFailingLookups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/word":
			w.Write([]byte(wordSearchXML))
		case "/cited":
			w.WriteHeader(http.StatusBadGateway)
		case "/citing":
			w.Write([]byte("not xml at all <"))
		default:
			w.Write([]byte(emptyXML))
		}
	}))
	defer srv.Close()

	r := newTestClient(t, srv, false).FetchAll(context.Background(), "1020200012345")
	assert.NotNil(t, r.BasicInfo)
	assert.Empty(t, r.Cited)
	assert.Empty(t, r.Citing)
	assert.Empty(t, r.Family)
}

func TestFetchAllUnreachableRegistry(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newTestClient(t, srv, false)
	srv.Close()

	r := c.FetchAll(context.Background(), "1020200012345")
	assert.Nil(t, r.BasicInfo)
	assert.Empty(t, r.Cited)
	assert.Empty(t, r.Citing)
	assert.Empty(t, r.Family)
}

func TestEndpointQueryStringIsPreserved(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(&registryStub{t: t, word: func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.Query())
		w.Write([]byte(wordSearchXML))
	}})
	defer srv.Close()

	c := newTestClient(t, srv, false)
	c.Cfg.WordSearch = srv.URL + "/word?numOfRows=1"

	app, err := c.Resolve(context.Background(), "특허 검색")
	require.NoError(t, err)
	assert.Equal(t, "1020200012345", app)

	q := got.Load().(url.Values)
	assert.Equal(t, "1", q.Get("numOfRows"))
	assert.Equal(t, testKey, q.Get("ServiceKey"))
	assert.Equal(t, "특허 검색", q.Get("word"))
}

func TestInvalidEndpointDegradesToAbsent(t *testing.T) {
	stub := &registryStub{t: t}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	c := newTestClient(t, srv, false)
	c.Cfg.Family = "http://[::1"

	assert.Empty(t, c.Family(context.Background(), "1020200012345"))
	assert.Equal(t, int32(0), stub.requests.Load())
}

func TestRequestURL(t *testing.T) {
	u, err := ET.UnwrapError(requestURL("http://example.com/svc?numOfRows=1&word=old", url.Values{
		"word":       {"신규"},
		"ServiceKey": {testKey},
	}))
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/svc?ServiceKey=XEOu%2Bkey%3D%3D&numOfRows=1&word=%EC%8B%A0%EA%B7%9C", u)
}

func TestNewClientRequiresServiceKey(t *testing.T) {
	_, err := NewClient(
		config.Registry{Timeout: time.Second},
		tracenoop.NewTracerProvider().Tracer("test"),
		zap.NewNop().Sugar(),
		metricnoop.NewMeterProvider().Meter("test"),
	)
	require.ErrorIs(t, err, ErrMissingServiceKey)
}
