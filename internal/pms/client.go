package pms

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrProcedure marks an explicit error envelope from the practice-management
// system. Distinct from zero records, which is a valid empty result.
var ErrProcedure = errors.New("pms: procedure error")

// Config describes the Chord XML procedure endpoint.
type Config struct {
	BaseURL  string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// Client calls fixed-envelope XML procedures against the practice-management
// system of record.
type Client struct {
	baseURL  string
	clientID string
	username string
	password string
	http     *http.Client
}

// NewClient validates the configuration and returns a client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("pms: base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		clientID: cfg.ClientID,
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// Param is one flat procedure parameter.
type Param struct {
	Name  string `xml:"Name"`
	Value string `xml:"Value"`
}

// Record is one result row. Field names vary per procedure and absent fields
// are valid, so rows decode into a flat map.
type Record map[string]string

// UnmarshalXML collects the record's flat field children.
func (r *Record) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	*r = Record{}
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var value string
			if err := d.DecodeElement(&value, &t); err != nil {
				return err
			}
			(*r)[t.Name.Local] = value
		case xml.EndElement:
			if t.Name == start.Name {
				return nil
			}
		}
	}
}

// Get returns a field value; absent fields read as empty.
func (r Record) Get(field string) string {
	return r[field]
}

type procedureRequest struct {
	XMLName   xml.Name `xml:"Request"`
	ClientID  string   `xml:"ClientID"`
	Username  string   `xml:"UserName"`
	Password  string   `xml:"Password"`
	Procedure string   `xml:"Procedure"`
	Params    []Param  `xml:"Parameters>Parameter"`
}

type procedureResponse struct {
	XMLName xml.Name `xml:"Response"`
	Error   string   `xml:"Error"`
	Records []Record `xml:"Records>Record"`
}

// Call executes one procedure and returns its records. An explicit error
// envelope fails with ErrProcedure; an empty record set succeeds.
func (c *Client) Call(ctx context.Context, procedure string, params []Param) ([]Record, error) {
	reqBody, err := xml.Marshal(procedureRequest{
		ClientID:  c.clientID,
		Username:  c.username,
		Password:  c.password,
		Procedure: procedure,
		Params:    params,
	})
	if err != nil {
		return nil, fmt.Errorf("pms: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("pms: request build failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pms: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("pms: read response failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pms: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var decoded procedureResponse
	if err := xml.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("pms: decode response failed: %w", err)
	}
	if strings.TrimSpace(decoded.Error) != "" {
		return nil, fmt.Errorf("%w: %s: %s", ErrProcedure, procedure, strings.TrimSpace(decoded.Error))
	}
	return decoded.Records, nil
}

// slotTimeLayout is how the system of record reports appointment start times.
const slotTimeLayout = "2006-01-02 15:04"

// SlotOccupied checks the schedule of record for the given slot time and
// reports who holds it, if anyone. Used to confirm or refute phantom
// unavailability after the fact.
func (c *Client) SlotOccupied(ctx context.Context, slot time.Time) (bool, string, error) {
	records, err := c.Call(ctx, "GetScheduledAppointments", []Param{
		{Name: "Date", Value: slot.Format("2006-01-02")},
	})
	if err != nil {
		return false, "", err
	}
	want := slot.Format(slotTimeLayout)
	for _, rec := range records {
		if rec.Get("StartTime") != want {
			continue
		}
		return true, rec.Get("PatientName"), nil
	}
	return false, "", nil
}
