package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/WessleyAI/carfinder/engine/domain"
)

// DefaultAutoDevURL is the production auto.dev API root.
const DefaultAutoDevURL = "https://api.auto.dev"

const (
	autoDevMaxLimit    = 100
	autoDevMaxFeatures = 10
	autoDevMaxImages   = 5
)

var (
	// ErrUnauthorized is returned when a source rejects the API key.
	ErrUnauthorized = errors.New("aggregate: unauthorized")
	// ErrBadResponse is returned for non-2xx statuses and undecodable bodies.
	ErrBadResponse = errors.New("aggregate: bad response")
)

// AutoDev queries the auto.dev listings API.
type AutoDev struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewAutoDev creates an auto.dev source. An empty baseURL uses DefaultAutoDevURL.
func NewAutoDev(baseURL, apiKey string, timeout time.Duration) *AutoDev {
	if baseURL == "" {
		baseURL = DefaultAutoDevURL
	}
	return &AutoDev{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *AutoDev) Name() string { return SourceAutoDev }

type autoDevResponse struct {
	Data []autoDevItem `json:"data"`
}

type autoDevItem struct {
	ID      string `json:"id"`
	Vehicle struct {
		VIN            string              `json:"vin"`
		Make           string              `json:"make"`
		Model          string              `json:"model"`
		Year           int                 `json:"year"`
		Fuel           string              `json:"fuel"`
		Transmission   string              `json:"transmission"`
		BodyStyle      string              `json:"bodyStyle"`
		SafetyRating   float64             `json:"safetyRating"`
		MPGCity        int                 `json:"mpgCity"`
		MPGHighway     int                 `json:"mpgHighway"`
		Specifications map[string][]string `json:"specifications"`
	} `json:"vehicle"`
	RetailListing struct {
		Price       float64 `json:"price"`
		Miles       int     `json:"miles"`
		City        string  `json:"city"`
		State       string  `json:"state"`
		Description string  `json:"description"`
		Dealer      string  `json:"dealer"`
		Phone       string  `json:"phone"`
		VDP         string  `json:"vdp"`
		ListedDate  string  `json:"listedDate"`
		Dealership  struct {
			City  string `json:"city"`
			State string `json:"state"`
		} `json:"dealership"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"retailListing"`
}

// Search calls GET /listings with the criteria as query parameters.
func (a *AutoDev) Search(ctx context.Context, c Criteria) ([]domain.Listing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/listings?"+autoDevQuery(c).Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("auto.dev: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "CarFinder/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auto.dev: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("auto.dev: status %d: %w", resp.StatusCode, ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("auto.dev: status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(msg)), ErrBadResponse)
	}

	var body autoDevResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("auto.dev: decode: %v: %w", err, ErrBadResponse)
	}

	out := make([]domain.Listing, 0, len(body.Data))
	for _, item := range body.Data {
		l := item.listing()
		if l.Make == "" || l.Model == "" {
			continue
		}
		if c.MileageMax > 0 && l.Mileage > c.MileageMax {
			continue
		}
		out = append(out, l)
	}
	return limitListings(out, c.Limit), nil
}

func autoDevQuery(c Criteria) url.Values {
	q := url.Values{}
	limit := c.Limit
	if limit <= 0 || limit > autoDevMaxLimit {
		limit = autoDevMaxLimit
	}
	q.Set("limit", strconv.Itoa(limit))
	if c.Make != "" {
		q.Set("vehicle.make", c.Make)
	}
	if c.Model != "" {
		q.Set("vehicle.model", c.Model)
	}
	switch {
	case c.YearMin > 0 && c.YearMax > 0:
		q.Set("vehicle.year", fmt.Sprintf("%d-%d", c.YearMin, c.YearMax))
	case c.YearMin > 0:
		q.Set("vehicle.year", strconv.Itoa(c.YearMin))
	}
	switch {
	case c.PriceMin > 0 && c.PriceMax > 0:
		q.Set("retailListing.price", fmt.Sprintf("%d-%d", int(c.PriceMin), int(c.PriceMax)))
	case c.PriceMax > 0:
		q.Set("retailListing.price", fmt.Sprintf("1-%d", int(c.PriceMax)))
	}
	if c.MileageMax > 0 {
		q.Set("retailListing.miles", fmt.Sprintf("0-%d", c.MileageMax))
	}
	if zip := c.Zip(); zip != "" {
		q.Set("zip", zip)
		if c.Radius > 0 {
			q.Set("distance", strconv.Itoa(c.Radius))
		}
	}
	return q
}

func (it autoDevItem) listing() domain.Listing {
	v, r := it.Vehicle, it.RetailListing

	var features []string
	cats := make([]string, 0, len(v.Specifications))
	for k := range v.Specifications {
		cats = append(cats, k)
	}
	sort.Strings(cats)
	for _, k := range cats {
		features = append(features, v.Specifications[k]...)
	}
	if len(features) > autoDevMaxFeatures {
		features = features[:autoDevMaxFeatures]
	}

	var images []string
	for _, img := range r.Images {
		if img.URL != "" && len(images) < autoDevMaxImages {
			images = append(images, img.URL)
		}
	}

	location := ""
	switch {
	case r.City != "" && r.State != "":
		location = r.City + ", " + r.State
	case r.Dealership.City != "" && r.Dealership.State != "":
		location = r.Dealership.City + ", " + r.Dealership.State
	}

	id := it.ID
	if id == "" {
		id = v.VIN
	}

	veh := domain.NormalizeVehicle(domain.Vehicle{
		VIN:          v.VIN,
		Make:         titleCase(v.Make),
		Model:        v.Model,
		Year:         v.Year,
		Price:        r.Price,
		Mileage:      r.Miles,
		FuelType:     titleCase(strings.ReplaceAll(v.Fuel, "_", " ")),
		Transmission: titleCase(strings.ReplaceAll(v.Transmission, "_", " ")),
		BodyClass:    v.BodyStyle,
		Location:     location,
		SafetyRating: v.SafetyRating,
		MPGCity:      v.MPGCity,
		MPGHighway:   v.MPGHighway,
		Description:  r.Description,
		Features:     features,
		Source:       SourceAutoDev,
	})
	if !domain.ValidVIN(veh.VIN) {
		veh.VIN = ""
	}
	return domain.Listing{
		Vehicle:     veh,
		ExternalID:  id,
		URL:         r.VDP,
		DealerName:  r.Dealer,
		DealerPhone: r.Phone,
		Images:      images,
		ListedAt:    r.ListedDate,
		Sources:     []string{SourceAutoDev},
	}
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
