package asvo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mwa-archive/squid/obsid"
	"github.com/mwa-archive/squid/retry"
)

// DefaultServer is the address of the MWA ASVO.
const DefaultServer = "https://asvo.mwatelescope.org:8778"

// The server requires a client-version string as the username of the
// login request. It can be overridden with MWA_ASVO_VERSION.
const defaultClientVersion = "mantaray-clientv1.0"

// DefaultConversionParameters are the Birli parameters used for
// conversion jobs when the user does not override them: a measurement
// set with 4s time integration, 40kHz frequency channels, 160kHz
// flagged from each coarse band edge, missing gpubox files allowed and
// centre channels flagged.
var DefaultConversionParameters = map[string]string{
	"download_type":  "conversion",
	"conversion":     "ms",
	"timeres":        "4",
	"freqres":        "40",
	"edgewidth":      "160",
	"allowmissing":   "true",
	"flagdcchannels": "true",
}

// Options configures a Client. Zero values fall back to defaults, with
// APIKey falling back to the MWA_ASVO_API_KEY environment variable.
type Options struct {
	Server        string
	APIKey        string
	ClientVersion string
	Timeout       time.Duration
	Retry         retry.Policy
	Logger        *zap.Logger
}

// SubmitOptions are common to all job submissions.
type SubmitOptions struct {
	Delivery Delivery
	// Format is an optional delivery format ("tar"). It does not apply
	// to acacia delivery, which is always tar.
	Format     string
	ExpiryDays int
	// AllowResubmit permits submitting a job whose exact parameters are
	// already in the queue.
	AllowResubmit bool
}

// Client is an authenticated session with the ASVO. It is safe for
// concurrent use: the only mutable state is the cookie jar and the
// transport's connection pool, both internally synchronized.
type Client struct {
	server string
	httpc  *http.Client
	retry  retry.Policy
	log    *zap.Logger
}

// NewClient authenticates with the ASVO and returns a client holding
// the session cookie.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("MWA_ASVO_API_KEY")
	}

	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if opts.Server == "" {
		opts.Server = DefaultServer
	}

	if opts.ClientVersion == "" {
		opts.ClientVersion = os.Getenv("MWA_ASVO_VERSION")
	}

	if opts.ClientVersion == "" {
		opts.ClientVersion = defaultClientVersion
	}

	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		server: strings.TrimRight(opts.Server, "/"),
		httpc: &http.Client{
			Jar:     jar,
			Timeout: opts.Timeout,
		},
		retry: opts.Retry,
		log:   opts.Logger,
	}

	c.log.Debug("connecting to ASVO", zap.String("server", c.server))

	if err := c.login(ctx, opts.ClientVersion, opts.APIKey); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) login(ctx context.Context, clientVersion, apiKey string) error {
	return retry.Do(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+"/api/login", nil)
		if err != nil {
			return retry.Permanent(err)
		}

		req.SetBasicAuth(clientVersion, apiKey)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return err
		}

		defer resp.Body.Close()

		return classifyStatus(resp)
	})
}

// GetJobs retrieves the user's current job listing.
func (c *Client) GetJobs(ctx context.Context) (JobList, error) {
	c.log.Debug("retrieving job statuses from the ASVO")

	body, err := c.get(ctx, "/api/get_jobs", nil)
	if err != nil {
		return nil, err
	}

	return decodeJobList(body)
}

// SubmitVisibilities submits a job to download raw visibilities.
func (c *Client) SubmitVisibilities(ctx context.Context, o obsid.Obsid, opts SubmitOptions) (JobID, error) {
	form := submitForm(o, opts)
	form.Set("download_type", "vis")

	return c.submit(ctx, TypeDownloadVisibilities, form)
}

// SubmitConversion submits a conversion job. Any parameter in common
// with DefaultConversionParameters overrides the default.
func (c *Client) SubmitConversion(ctx context.Context, o obsid.Obsid, params map[string]string, opts SubmitOptions) (JobID, error) {
	form := submitForm(o, opts)

	for k, v := range DefaultConversionParameters {
		form.Set(k, v)
	}

	for k, v := range params {
		form.Set(k, v)
	}

	return c.submit(ctx, TypeConversion, form)
}

// SubmitMetadata submits a job to download observation metadata
// (metafits and flags).
func (c *Client) SubmitMetadata(ctx context.Context, o obsid.Obsid, opts SubmitOptions) (JobID, error) {
	form := submitForm(o, opts)
	form.Set("download_type", "vis_meta")

	return c.submit(ctx, TypeDownloadMetadata, form)
}

// SubmitVoltage submits a job to download voltages. The only valid
// delivery for a voltage job is scratch.
func (c *Client) SubmitVoltage(ctx context.Context, o obsid.Obsid, offset, duration int, opts SubmitOptions) (JobID, error) {
	if opts.Delivery != DeliveryScratch {
		return 0, fmt.Errorf("voltage jobs can only be delivered to scratch, not %s", opts.Delivery)
	}

	form := submitForm(o, opts)
	form.Set("download_type", "volt")
	form.Set("offset", strconv.Itoa(offset))
	form.Set("duration", strconv.Itoa(duration))

	return c.submit(ctx, TypeDownloadVoltage, form)
}

// CancelJob asks the ASVO to cancel the given job.
func (c *Client) CancelJob(ctx context.Context, id JobID) error {
	c.log.Debug("cancelling job", zap.Int("jobID", int(id)))

	_, err := c.get(ctx, "/api/cancel_job", url.Values{"job_id": {strconv.Itoa(int(id))}})

	return err
}

// DownloadURL returns the URL a manifest file is fetched from: the
// manifest's own presigned URL when present, otherwise the download API
// endpoint.
func (c *Client) DownloadURL(id JobID, f File) string {
	if f.URL != "" {
		return f.URL
	}

	q := url.Values{
		"job_id":    {strconv.Itoa(int(id))},
		"file_name": {f.Name},
	}

	return c.server + "/api/download?" + q.Encode()
}

// HTTPClient exposes the session's HTTP client so downloads share its
// cookies and connection pool.
func (c *Client) HTTPClient() *http.Client {
	return c.httpc
}

// RetryPolicy returns the policy the client was built with.
func (c *Client) RetryPolicy() retry.Policy {
	return c.retry
}

func submitForm(o obsid.Obsid, opts SubmitOptions) url.Values {
	form := url.Values{}
	form.Set("obs_id", o.String())
	form.Set("delivery", opts.Delivery.String())

	if opts.Format != "" && opts.Delivery != DeliveryAcacia {
		form.Set("delivery_format", opts.Format)
	}

	if opts.ExpiryDays > 0 {
		form.Set("expiry_days", strconv.Itoa(opts.ExpiryDays))
	}

	if opts.AllowResubmit {
		form.Set("allow_resubmit", "true")
	}

	return form
}

func (c *Client) submit(ctx context.Context, t JobType, form url.Values) (JobID, error) {
	var path string

	switch t {
	case TypeConversion:
		path = "/api/conversion_job"
	case TypeDownloadVisibilities, TypeDownloadMetadata:
		path = "/api/download_vis_job"
	case TypeDownloadVoltage:
		path = "/api/voltage_job"
	default:
		return 0, fmt.Errorf("job type %s cannot be submitted", t)
	}

	body, err := c.postForm(ctx, path, form)
	if err != nil {
		return 0, err
	}

	return decodeSubmitResponse(body)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, func() (*http.Request, error) {
		u := c.server + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+path, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}

		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		return req, nil
	})
}

// do performs a request under the retry policy. Connection errors and
// 5xx responses are retried; 4xx responses fail immediately.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	var body []byte

	err := retry.Do(ctx, c.retry, func() error {
		req, err := build()
		if err != nil {
			return retry.Permanent(err)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return err
		}

		defer resp.Body.Close()

		if err := classifyStatus(resp); err != nil {
			return err
		}

		body, err = io.ReadAll(resp.Body)

		return err
	})

	return body, err
}

// classifyStatus turns a non-2xx response into an error: transient for
// server-side failures, permanent for client-side rejections.
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 500 {
		return &ServerError{StatusCode: resp.StatusCode, Message: string(msg)}
	}

	return retry.Permanent(&RequestError{StatusCode: resp.StatusCode, Message: string(msg)})
}
