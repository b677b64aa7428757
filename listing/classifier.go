package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"geargrid/adapters/s3"
)

// ExtractionPrompt 是送往生成式 AI 的固定指示
const ExtractionPrompt = `Analyze this car image and extract the following information:
1. Make (manufacturer)
2. Model
3. Year (approximately)
4. Color
5. Body type (SUV, Sedan, Hatchback, etc.)
6. Mileage (fuel efficiency) with unit:
   - Petrol/Diesel: km/L (e.g. "15 km/L")
   - Electric: km/kWh (e.g. "6 km/kWh")
   - Hybrid: km/L (e.g. "18 km/L")
   If unknown use the defaults: Petrol/Diesel "12 km/L", Electric "6 km/kWh", Hybrid "18 km/L",
   SUV "10 km/L" or "4 km/kWh" when electric. Never leave this field empty.
7. Fuel type (Petrol, Diesel, Electric, Hybrid). Never leave this field empty.
8. Transmission type
9. Price in US dollars as a plain number string without commas or currency symbols
   (e.g. "25000", not "$25,000"). Convert other currencies to US dollars first.
10. Number of seats, estimated from body type and size.
11. A short description suitable for a car listing.

Respond with only this JSON object:
{
  "make": "",
  "model": "",
  "year": 0,
  "color": "",
  "price": "",
  "mileage": "",
  "bodyType": "",
  "fuelType": "",
  "transmission": "",
  "seats": 0,
  "description": "",
  "confidence": 0.0
}
confidence is a number between 0 and 1 describing how sure you are of the identification.`

var codeFence = regexp.MustCompile("```(?:json)?\\n?")

type classifierOptions struct {
	seatsRequired bool
	logger        *slog.Logger
}

type ClassifierOption func(*classifierOptions)

// WithSeatsRequired 要求 AI 回應必須包含 seats
func WithSeatsRequired(required bool) ClassifierOption {
	return func(o *classifierOptions) {
		o.seatsRequired = required
	}
}

// WithClassifierLogger 設置日誌記錄器
func WithClassifierLogger(logger *slog.Logger) ClassifierOption {
	return func(o *classifierOptions) {
		o.logger = logger
	}
}

// Classifier 透過 Generator 從照片推測刊登欄位
type Classifier struct {
	generator Generator
	options   classifierOptions
	logger    *slog.Logger
}

// NewClassifier 建立 Classifier；generator 為 nil 代表未設定 API 金鑰，
// 呼叫 Classify 時會回傳 ConfigurationError。
func NewClassifier(generator Generator, opts ...ClassifierOption) *Classifier {
	options := classifierOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Classifier{
		generator: generator,
		options:   options,
		logger:    options.logger.With(slog.String("caller", "Classifier")),
	}
}

func (c *Classifier) Classify(ctx context.Context, image Image) (*Candidate, error) {
	if c.generator == nil {
		return nil, &ConfigurationError{Setting: "generative AI API key"}
	}
	if ok, _ := s3.CheckSecureImageAndGetExtension(image.MediaType); !ok {
		return nil, &ValidationError{Fields: []string{"image"}, Message: fmt.Sprintf("unsupported image type %q", image.MediaType)}
	}
	if len(image.Data) == 0 {
		return nil, &ValidationError{Fields: []string{"image"}, Message: "empty image"}
	}

	raw, err := c.generator.GenerateFromImage(ctx, image, ExtractionPrompt)
	if err != nil {
		return nil, &UpstreamError{Service: "generative AI", Err: err}
	}
	candidate, err := ParseCandidate(raw, c.options.seatsRequired)
	if err != nil {
		c.logger.Error("Fail to parse AI response", slog.Any("error", err), slog.String("raw", raw))
		return nil, err
	}
	return candidate, nil
}

// ParseCandidate 去除 Markdown code fence 後嚴格解析 JSON，並套用正規化與預設值
func ParseCandidate(raw string, seatsRequired bool) (*Candidate, error) {
	cleaned := strings.TrimSpace(codeFence.ReplaceAllString(raw, ""))

	var schema candidateSchema
	decoder := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	if err := decoder.Decode(&schema); err != nil {
		return nil, &ResponseFormatError{Raw: raw, Err: err}
	}
	if decoder.More() {
		return nil, &ResponseFormatError{Raw: raw, Err: fmt.Errorf("unexpected trailing content")}
	}

	missing, err := schema.missing(seatsRequired)
	if err != nil {
		return nil, &ResponseFormatError{Raw: raw, Err: err}
	}
	if len(missing) > 0 {
		return nil, &IncompleteResponseError{Missing: missing}
	}

	fields := schema.fields()
	fields.Price = NormalizePrice(fields.Price)
	fields.FuelType, fields.Mileage = DefaultEfficiency(fields.FuelType, fields.BodyType, fields.Mileage)
	// 模板中的 0 代表無法判斷
	if fields.Seats == "0" {
		fields.Seats = ""
	}

	return &Candidate{
		Fields:     fields,
		Confidence: lo.Clamp(*schema.Confidence, 0, 1),
	}, nil
}

var priceNoise = regexp.MustCompile(`[^0-9.]`)

// NormalizePrice 移除貨幣符號與千分位，只保留數字與小數點
func NormalizePrice(price string) string {
	cleaned := priceNoise.ReplaceAllString(price, "")
	// 多個小數點時只保留第一個
	if head, tail, found := strings.Cut(cleaned, "."); found {
		tail = strings.ReplaceAll(tail, ".", "")
		if tail == "" {
			return head
		}
		return head + "." + tail
	}
	return cleaned
}

type fuelClass string

const (
	fuelPetrol   fuelClass = "Petrol"
	fuelDiesel   fuelClass = "Diesel"
	fuelElectric fuelClass = "Electric"
	fuelHybrid   fuelClass = "Hybrid"
)

// defaultMileage 是無法判斷油耗時使用的預設值
var defaultMileage = map[fuelClass]string{
	fuelPetrol:   "12 km/L",
	fuelDiesel:   "12 km/L",
	fuelElectric: "6 km/kWh",
	fuelHybrid:   "18 km/L",
}

var unknownValues = []string{"", "unknown", "n/a", "na", "none", "null", "-"}

func isUnknown(s string) bool {
	return lo.Contains(unknownValues, strings.ToLower(strings.TrimSpace(s)))
}

func classifyFuel(fuelType string) (fuelClass, bool) {
	f := strings.ToLower(fuelType)
	switch {
	case strings.Contains(f, "hybrid"):
		return fuelHybrid, true
	case strings.Contains(f, "electric"), f == "ev", f == "bev":
		return fuelElectric, true
	case strings.Contains(f, "diesel"):
		return fuelDiesel, true
	case strings.Contains(f, "petrol"), strings.Contains(f, "gasoline"), strings.Contains(f, "gas"):
		return fuelPetrol, true
	}
	return fuelPetrol, false
}

// DefaultEfficiency 補上無法判斷的燃料類型與油耗，兩者都不會回傳空字串
func DefaultEfficiency(fuelType, bodyType, mileage string) (string, string) {
	if isUnknown(fuelType) {
		fuelType = string(fuelPetrol)
	}
	if !isUnknown(mileage) {
		return fuelType, strings.TrimSpace(mileage)
	}
	class, _ := classifyFuel(fuelType)
	if strings.EqualFold(strings.TrimSpace(bodyType), "suv") {
		if class == fuelElectric {
			return fuelType, "4 km/kWh"
		}
		return fuelType, "10 km/L"
	}
	return fuelType, defaultMileage[class]
}
