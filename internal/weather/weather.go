// Package weather looks up current conditions and today's forecast
// from Open-Meteo, which needs no API key.
package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/nugget/aide/internal/httpkit"
)

// ErrCityNotFound is returned when geocoding has no match.
var ErrCityNotFound = errors.New("city not found")

const (
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
)

// Report is the current weather for one place.
type Report struct {
	City        string
	Code        int
	Description string
	Temp        float64
	FeelsLike   float64
	TempMin     *float64
	TempMax     *float64
	Humidity    int
	WindSpeed   float64 // m/s
	UVIndex     float64
	RainChance  *int
}

// Client queries Open-Meteo.
type Client struct {
	geocodingURL string
	forecastURL  string
	httpClient   *http.Client
}

// NewClient creates a client. Empty URLs use the public endpoints.
func NewClient(geocodingURL, forecastURL string, httpClient *http.Client) *Client {
	if geocodingURL == "" {
		geocodingURL = DefaultGeocodingURL
	}
	if forecastURL == "" {
		forecastURL = DefaultForecastURL
	}
	if httpClient == nil {
		httpClient = httpkit.NewClient()
	}
	return &Client{geocodingURL: geocodingURL, forecastURL: forecastURL, httpClient: httpClient}
}

type place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// cityAliases maps Korean city names to the English names the
// geocoder matches reliably.
var cityAliases = map[string]string{
	"서울": "Seoul",
	"부산": "Busan",
	"인천": "Incheon",
	"대구": "Daegu",
	"대전": "Daejeon",
	"광주": "Gwangju",
	"울산": "Ulsan",
	"세종": "Sejong",
	"수원": "Suwon",
	"제주": "Jeju",
	"춘천": "Chuncheon",
	"강릉": "Gangneung",
	"경주": "Gyeongju",
	"전주": "Jeonju",
	"포항": "Pohang",
}

func (c *Client) geocode(ctx context.Context, city string) (*place, error) {
	query := strings.TrimSpace(city)
	if alias, ok := cityAliases[query]; ok {
		query = alias
	}
	params := url.Values{
		"name":   {query},
		"count":  {"1"},
		"format": {"json"},
	}

	var resp struct {
		Results []place `json:"results"`
	}
	if err := httpkit.GetJSON(ctx, c.httpClient, c.geocodingURL+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("geocode %q: %w", city, err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("geocode %q: %w", city, ErrCityNotFound)
	}
	return &resp.Results[0], nil
}

type forecastResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		Humidity    int     `json:"relative_humidity_2m"`
		Apparent    float64 `json:"apparent_temperature"`
		WeatherCode int     `json:"weather_code"`
		WindSpeed   float64 `json:"wind_speed_10m"`
	} `json:"current"`
	Daily struct {
		TempMax    []float64 `json:"temperature_2m_max"`
		TempMin    []float64 `json:"temperature_2m_min"`
		UVIndexMax []float64 `json:"uv_index_max"`
		RainMax    []int     `json:"precipitation_probability_max"`
	} `json:"daily"`
}

// Current geocodes city and fetches its current conditions.
func (c *Client) Current(ctx context.Context, city string) (*Report, error) {
	p, err := c.geocode(ctx, city)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"latitude":        {fmt.Sprintf("%.4f", p.Latitude)},
		"longitude":       {fmt.Sprintf("%.4f", p.Longitude)},
		"current":         {"temperature_2m,relative_humidity_2m,apparent_temperature,weather_code,wind_speed_10m"},
		"daily":           {"temperature_2m_max,temperature_2m_min,uv_index_max,precipitation_probability_max"},
		"wind_speed_unit": {"ms"},
		"timezone":        {"auto"},
		"forecast_days":   {"1"},
	}

	var fr forecastResponse
	if err := httpkit.GetJSON(ctx, c.httpClient, c.forecastURL+"?"+params.Encode(), nil, &fr); err != nil {
		return nil, fmt.Errorf("forecast %q: %w", p.Name, err)
	}

	r := &Report{
		City:        p.Name,
		Code:        fr.Current.WeatherCode,
		Description: Describe(fr.Current.WeatherCode),
		Temp:        round1(fr.Current.Temperature),
		FeelsLike:   round1(fr.Current.Apparent),
		Humidity:    fr.Current.Humidity,
		WindSpeed:   fr.Current.WindSpeed,
	}
	if len(fr.Daily.TempMin) > 0 && len(fr.Daily.TempMax) > 0 {
		lo, hi := round1(fr.Daily.TempMin[0]), round1(fr.Daily.TempMax[0])
		r.TempMin, r.TempMax = &lo, &hi
	}
	if len(fr.Daily.UVIndexMax) > 0 {
		r.UVIndex = round1(fr.Daily.UVIndexMax[0])
	}
	if len(fr.Daily.RainMax) > 0 {
		rain := fr.Daily.RainMax[0]
		r.RainChance = &rain
	}
	return r, nil
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

// Format renders a report as a markdown block.
func Format(r *Report) string {
	lines := []string{
		fmt.Sprintf("**🌡️ Weather in %s**\n", r.City),
		"**Conditions:** " + r.Description,
		fmt.Sprintf("**Temperature:** %.1f°C (feels like %.1f°C)", r.Temp, r.FeelsLike),
	}
	if r.TempMin != nil && r.TempMax != nil {
		lines = append(lines, fmt.Sprintf("**Low/High:** %.1f°C / %.1f°C", *r.TempMin, *r.TempMax))
	}
	lines = append(lines,
		fmt.Sprintf("**Humidity:** %d%%", r.Humidity),
		fmt.Sprintf("**Wind:** %.1f m/s", r.WindSpeed),
		fmt.Sprintf("**UV index:** %.1f (%s)", r.UVIndex, UVLevel(r.UVIndex)),
	)
	if r.RainChance != nil {
		lines = append(lines, fmt.Sprintf("**Chance of rain:** %d%%", *r.RainChance))
	}
	return strings.Join(lines, "\n")
}

// Describe returns a WMO weather interpretation code description.
func Describe(code int) string {
	if d, ok := wmoCodes[code]; ok {
		return d
	}
	return fmt.Sprintf("Unknown (%d)", code)
}

var wmoCodes = map[int]string{
	0:  "Clear ☀️",
	1:  "Mostly clear 🌤️",
	2:  "Partly cloudy ⛅",
	3:  "Overcast ☁️",
	45: "Fog 🌫️",
	48: "Rime fog 🌫️",
	51: "Light drizzle 🌦️",
	53: "Drizzle 🌦️",
	55: "Heavy drizzle 🌧️",
	61: "Light rain 🌦️",
	63: "Rain 🌧️",
	65: "Heavy rain 🌧️",
	66: "Light freezing rain 🌧️",
	67: "Heavy freezing rain 🌧️",
	71: "Light snow 🌨️",
	73: "Snow ❄️",
	75: "Heavy snow ❄️",
	77: "Snow grains ❄️",
	80: "Light showers 🌦️",
	81: "Showers 🌧️",
	82: "Violent showers 🌧️",
	85: "Light snow showers 🌨️",
	86: "Heavy snow showers ❄️",
	95: "Thunderstorm ⛈️",
	96: "Thunderstorm with hail ⛈️",
	99: "Thunderstorm with heavy hail ⛈️",
}

// UVLevel buckets a UV index into the WHO exposure categories.
func UVLevel(uv float64) string {
	switch {
	case uv <= 2:
		return "low"
	case uv <= 5:
		return "moderate"
	case uv <= 7:
		return "high"
	case uv <= 10:
		return "very high"
	default:
		return "extreme"
	}
}
