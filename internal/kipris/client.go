// Package kipris reads bibliographic, citation and family records from the
// KIPRIS Plus open API.
package kipris

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	F "github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	Http "github.com/IBM/fp-go/v2/ioeither/http"
	"github.com/IBM/fp-go/v2/option"
	"github.com/antchfx/xmlquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/config"
	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/models"
)

// Record element names of each service's XML payload.
const (
	itemRecord   = "item"
	citedRecord  = "citationInfoV2"
	citingRecord = "citingInfo"
)

var appNumberPattern = regexp.MustCompile(`^\d+[\d-]*\d+$`)

var errNoRecord = errors.New("no record element")

// ErrMissingServiceKey is returned when no registry credential is configured.
var ErrMissingServiceKey = errors.New("registry service key is required (set KIPRIS_API_KEY)")

type Client struct {
	Cfg             config.Registry
	Logger          *zap.SugaredLogger
	Tracer          trace.Tracer
	Meter           metric.Meter
	client          Http.Client
	requestsTotal   metric.Int64Counter
	requestsFailed  metric.Int64Counter
	requestDuration metric.Int64Histogram
}

func NewClient(
	cfg config.Registry,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Client, error) {
	if cfg.ServiceKey == "" {
		return nil, ErrMissingServiceKey
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		Cfg:    cfg,
		Logger: logger,
		Tracer: tracer,
		Meter:  meter,
		client: Http.MakeClient(&http.Client{Timeout: timeout}),
	}

	var err error
	c.requestsTotal, err = meter.Int64Counter(
		"registry.requests.total",
		metric.WithDescription("Total number of registry requests issued"),
	)
	if err != nil {
		return nil, err
	}

	c.requestsFailed, err = meter.Int64Counter(
		"registry.requests.failed",
		metric.WithDescription("Registry requests that failed or returned no record"),
	)
	if err != nil {
		return nil, err
	}

	c.requestDuration, err = meter.Int64Histogram(
		"registry.request.duration",
		metric.WithDescription("Duration of individual registry requests"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// IsApplicationNumber reports whether the query is a bare application number
// such as "10-2020-0012345".
func IsApplicationNumber(query string) bool {
	return appNumberPattern.MatchString(query)
}

func NormalizeApplicationNumber(s string) string {
	return strings.ReplaceAll(s, "-", "")
}

// Resolve turns a query into an application number. Numeric queries are used
// as is; anything else goes through the word search and the first hit wins.
func (c *Client) Resolve(ctx context.Context, query string) (string, error) {
	if IsApplicationNumber(query) {
		return NormalizeApplicationNumber(query), nil
	}
	ctx, span := c.Tracer.Start(ctx, "registry.resolve", trace.WithAttributes(
		attribute.String("query", query),
	))
	defer span.End()

	appNumber := F.Pipe2(
		c.fetch(ctx, "word_search", c.Cfg.WordSearch, url.Values{
			"word":       {query},
			"ServiceKey": {c.Cfg.ServiceKey},
		}, itemRecord),
		option.Map(func(doc *xmlquery.Node) string {
			return NormalizeApplicationNumber(getText(xmlquery.FindOne(doc, "//"+itemRecord), "applicationNumber"))
		}),
		option.GetOrElse(func() string { return "" }),
	)
	if appNumber == "" {
		return "", models.ErrNotFound
	}
	span.SetAttributes(attribute.String("application_number", appNumber))
	c.Logger.Infow("Resolved representative patent", "query", query, "app_number", appNumber)
	return appNumber, nil
}

// FetchAll runs the four lookups for an application number. Each one degrades
// to an empty value on its own; the aggregate is always returned.
func (c *Client) FetchAll(ctx context.Context, appNumber string) models.Related {
	ctx, span := c.Tracer.Start(ctx, "registry.fetch_all", trace.WithAttributes(
		attribute.String("application_number", appNumber),
		attribute.Bool("parallel", c.Cfg.Parallel),
	))
	defer span.End()

	var r models.Related
	lookups := []func(context.Context){
		func(ctx context.Context) { r.BasicInfo = c.BasicInfo(ctx, appNumber) },
		func(ctx context.Context) { r.Cited = c.Cited(ctx, appNumber) },
		func(ctx context.Context) { r.Citing = c.Citing(ctx, appNumber) },
		func(ctx context.Context) { r.Family = c.Family(ctx, appNumber) },
	}

	if !c.Cfg.Parallel {
		for _, lookup := range lookups {
			lookup(ctx)
		}
	} else {
		var g errgroup.Group
		for _, lookup := range lookups {
			g.Go(func() error {
				lookup(ctx)
				return nil
			})
		}
		_ = g.Wait()
	}

	span.SetAttributes(
		attribute.Bool("basic_info", r.BasicInfo != nil),
		attribute.Int("cited", len(r.Cited)),
		attribute.Int("citing", len(r.Citing)),
		attribute.Int("family", len(r.Family)),
	)
	return r
}

// BasicInfo returns the bibliographic fields of the application, or nil.
func (c *Client) BasicInfo(ctx context.Context, appNumber string) models.BasicInfo {
	return F.Pipe2(
		c.fetch(ctx, "basic_info", c.Cfg.WordSearch, url.Values{
			"word":       {appNumber},
			"ServiceKey": {c.Cfg.ServiceKey},
		}, itemRecord),
		option.Map(func(doc *xmlquery.Node) models.BasicInfo {
			return basicInfoFromItem(xmlquery.FindOne(doc, "//"+itemRecord))
		}),
		option.GetOrElse(func() models.BasicInfo { return nil }),
	)
}

// Cited lists the documents this application cites.
func (c *Client) Cited(ctx context.Context, appNumber string) []models.CitationRef {
	return c.citations(ctx, "cited", c.Cfg.Cited, url.Values{
		"applicationNumber": {appNumber},
		"accessKey":         {c.Cfg.ServiceKey},
	}, citedRecord)
}

// Citing lists the documents that cite this application.
func (c *Client) Citing(ctx context.Context, appNumber string) []models.CitationRef {
	return c.citations(ctx, "citing", c.Cfg.Citing, url.Values{
		"standardCitationApplicationNumber": {appNumber},
		"accessKey":                         {c.Cfg.ServiceKey},
	}, citingRecord)
}

// Family lists foreign filings of the same invention.
func (c *Client) Family(ctx context.Context, appNumber string) []models.FamilyMember {
	return F.Pipe2(
		c.fetch(ctx, "family", c.Cfg.Family, url.Values{
			"applicationNumber": {appNumber},
			"ServiceKey":        {c.Cfg.ServiceKey},
		}, itemRecord),
		option.Map(func(doc *xmlquery.Node) []models.FamilyMember {
			var family []models.FamilyMember
			for _, n := range xmlquery.Find(doc, "//"+itemRecord) {
				family = append(family, models.FamilyMember{
					Country:   getText(n, "applicationCountryCode"),
					AppNumber: getText(n, "applicationNumber"),
				})
			}
			return family
		}),
		option.GetOrElse(func() []models.FamilyMember { return []models.FamilyMember{} }),
	)
}

func (c *Client) citations(
	ctx context.Context,
	lookup, endpoint string,
	params url.Values,
	record string,
) []models.CitationRef {
	return F.Pipe2(
		c.fetch(ctx, lookup, endpoint, params, record),
		option.Map(func(doc *xmlquery.Node) []models.CitationRef {
			var refs []models.CitationRef
			for _, n := range xmlquery.Find(doc, "//"+record) {
				refs = append(refs, models.CitationRef(getText(n, "applicationNumber")))
			}
			return refs
		}),
		option.GetOrElse(func() []models.CitationRef { return []models.CitationRef{} }),
	)
}

// fetch issues one GET and returns the parsed document when the response is
// 200 and holds at least one record element.
func (c *Client) fetch(
	ctx context.Context,
	lookup, endpoint string,
	params url.Values,
	record string,
) option.Option[*xmlquery.Node] {
	ctx, span := c.Tracer.Start(ctx, "registry.request", trace.WithAttributes(
		attribute.String("lookup", lookup),
		attribute.String("endpoint", endpoint),
	))
	defer span.End()
	startTime := time.Now()
	attrs := metric.WithAttributes(attribute.String("lookup", lookup))
	c.requestsTotal.Add(ctx, 1, attrs)
	c.Logger.Debugw("Registry request", "lookup", lookup, "endpoint", endpoint)

	result := F.Pipe1(
		IOE.Bracket(
			c.client.Do(F.Pipe1(
				IOE.FromEither(requestURL(endpoint, params)),
				IOE.Chain(Http.MakeGetRequest),
			)),
			func(resp *http.Response) IOE.IOEither[error, *xmlquery.Node] {
				if resp.StatusCode != http.StatusOK {
					return IOE.Left[*xmlquery.Node](fmt.Errorf("bad status: %d", resp.StatusCode))
				}
				return IOE.TryCatchError(func() (*xmlquery.Node, error) {
					return xmlquery.Parse(resp.Body)
				})
			},
			func(resp *http.Response, _ ET.Either[error, *xmlquery.Node]) IOE.IOEither[error, any] {
				return IOE.TryCatchError(func() (any, error) { return nil, resp.Body.Close() })
			},
		),
		IOE.Chain(func(doc *xmlquery.Node) IOE.IOEither[error, *xmlquery.Node] {
			if xmlquery.FindOne(doc, "//"+record) == nil {
				return IOE.Left[*xmlquery.Node](fmt.Errorf("%w <%s>", errNoRecord, record))
			}
			return IOE.Right[error](doc)
		}),
	)()

	c.requestDuration.Record(ctx, time.Since(startTime).Milliseconds(), attrs)
	return ET.Fold(
		func(err error) option.Option[*xmlquery.Node] {
			c.requestsFailed.Add(ctx, 1, attrs)
			if errors.Is(err, errNoRecord) {
				span.AddEvent("no_record")
				c.Logger.Debugw("Registry returned no record", "lookup", lookup)
			} else {
				span.RecordError(err)
				c.Logger.Warnw("Registry request failed", "lookup", lookup, "err", err)
			}
			return option.None[*xmlquery.Node]()
		},
		func(doc *xmlquery.Node) option.Option[*xmlquery.Node] {
			return option.Some(doc)
		},
	)(result)
}

// requestURL merges params into the endpoint's own query string.
func requestURL(endpoint string, params url.Values) ET.Either[error, string] {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ET.Left[string](fmt.Errorf("invalid endpoint %q: %w", endpoint, err))
	}
	query := u.Query()
	for key, values := range params {
		query[key] = values
	}
	u.RawQuery = query.Encode()
	return ET.Right[error](u.String())
}

func basicInfoFromItem(item *xmlquery.Node) models.BasicInfo {
	info := models.BasicInfo{}
	if item == nil {
		return info
	}
	for n := item.FirstChild; n != nil; n = n.NextSibling {
		if n.Type != xmlquery.ElementNode {
			continue
		}
		if text := strings.TrimSpace(n.InnerText()); text != "" {
			info[n.Data] = text
		}
	}
	return info
}

func getText(parent *xmlquery.Node, selector string) string {
	if parent == nil {
		return ""
	}
	n := xmlquery.FindOne(parent, selector)
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.InnerText())
}
