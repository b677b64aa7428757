package listing

import (
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// schemaValidator 同時檢查 AI 草稿與表單，欄位名稱以 json tag 回報
var schemaValidator = newSchemaValidator()

func newSchemaValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// invalidFields 執行驗證並回傳不合法欄位的名稱（依結構定義順序）
func invalidFields(v any) ([]string, error) {
	err := schemaValidator.Struct(v)
	if err == nil {
		return nil, nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return nil, err
	}
	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		fields = append(fields, fe.Field())
	}
	return fields, nil
}

// text 接受 JSON 字串、數字或布林，統一轉成字串
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*t = text(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*t = text(strconv.FormatBool(b))
		return nil
	}
	return errors.New("expected string or number")
}

func (t *text) String() string {
	if t == nil {
		return ""
	}
	return strings.TrimSpace(string(*t))
}

// candidateSchema 是 AI 回應的欄位定義；指標欄位用來判斷 key 是否存在
type candidateSchema struct {
	Make         *text    `json:"make" validate:"required"`
	Model        *text    `json:"model" validate:"required"`
	Year         *text    `json:"year" validate:"required"`
	Color        *text    `json:"color" validate:"required"`
	BodyType     *text    `json:"bodyType" validate:"required"`
	Price        *text    `json:"price" validate:"required"`
	Mileage      *text    `json:"mileage" validate:"required"`
	FuelType     *text    `json:"fuelType" validate:"required"`
	Transmission *text    `json:"transmission" validate:"required"`
	Seats        *text    `json:"seats"`
	Description  *text    `json:"description" validate:"required"`
	Confidence   *float64 `json:"confidence" validate:"required"`
}

// missing 回傳缺少的欄位；seats 是否必填由呼叫端決定
func (c *candidateSchema) missing(seatsRequired bool) ([]string, error) {
	fields, err := invalidFields(c)
	if err != nil {
		return nil, err
	}
	if seatsRequired && c.Seats == nil {
		fields = append(fields, "seats")
	}
	return fields, nil
}

func (c *candidateSchema) fields() Fields {
	return Fields{
		Make:         c.Make.String(),
		Model:        c.Model.String(),
		Year:         c.Year.String(),
		Price:        c.Price.String(),
		Mileage:      c.Mileage.String(),
		Color:        c.Color.String(),
		FuelType:     c.FuelType.String(),
		Transmission: c.Transmission.String(),
		BodyType:     c.BodyType.String(),
		Seats:        c.Seats.String(),
		Description:  c.Description.String(),
	}
}
