package fusion

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

//go:embed request.schema.json
var requestSchemaJSON []byte

const requestSchemaURL = "fusion-request.schema.json"

var (
	requestSchemaOnce sync.Once
	requestSchema     *jsonschema.Schema
	requestSchemaErr  error
)

// numericFields 上游偶尔把数字写成字符串，只对这些字段做宽松转换。
var numericFields = map[string]struct{}{
	"confidence":     {},
	"target_size":    {},
	"risk_score":     {},
	"delay_ms":       {},
	"final_size":     {},
	"latency_ms":     {},
	"pressure_score": {},
	"price":          {},
	"bid":            {},
	"ask":            {},
}

func compiledRequestSchema() (*jsonschema.Schema, error) {
	requestSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft7
		compiler.AssertFormat = true
		if err := compiler.AddResource(requestSchemaURL, bytes.NewReader(requestSchemaJSON)); err != nil {
			requestSchemaErr = err
			return
		}
		requestSchema, requestSchemaErr = compiler.Compile(requestSchemaURL)
	})
	return requestSchema, requestSchemaErr
}

// DecodeRequest 解析外部 JSON：语法检查 -> 宽松数字转换 -> schema 校验 -> 结构体 -> 领域校验。
// 所有输入问题都以 *ValidationError 返回。
func DecodeRequest(raw []byte) (Request, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Request{}, singleIssue("request", "body is empty")
	}
	if !gjson.ValidBytes(raw) {
		return Request{}, singleIssue("request", "malformed json")
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return Request{}, singleIssue("request", "root must be a json object")
	}
	verr := &ValidationError{}
	for _, src := range []string{"exo", "reactor", "market"} {
		node := parsed.Get(src)
		switch {
		case !node.Exists():
			verr.add("", src, "is required")
		case !node.IsObject():
			verr.add("", src, "must be an object")
		}
	}
	if err := verr.orNil(); err != nil {
		return Request{}, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Request{}, singleIssue("request", err.Error())
	}
	doc = coerceNumbers(doc, "")

	schema, err := compiledRequestSchema()
	if err != nil {
		return Request{}, fmt.Errorf("compile request schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		var sverr *jsonschema.ValidationError
		if errors.As(err, &sverr) {
			return Request{}, schemaIssues(sverr)
		}
		return Request{}, singleIssue("request", err.Error())
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return Request{}, singleIssue("request", err.Error())
	}
	var req Request
	if err := json.Unmarshal(normalized, &req); err != nil {
		return Request{}, singleIssue("request", err.Error())
	}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

func coerceNumbers(v any, key string) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			val[k] = coerceNumbers(child, k)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = coerceNumbers(child, "")
		}
		return val
	case string:
		if _, ok := numericFields[key]; !ok {
			return val
		}
		s := strings.TrimSpace(val)
		if num, err := strconv.ParseFloat(s, 64); err == nil {
			return num
		}
		return val
	default:
		return val
	}
}

// schemaIssues 把 schema 错误树的叶子节点展开成字段级问题。
func schemaIssues(root *jsonschema.ValidationError) error {
	verr := &ValidationError{}
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			source, field := splitInstanceLocation(e.InstanceLocation)
			verr.Issues = append(verr.Issues, FieldIssue{Source: source, Field: field, Reason: e.Message})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(root)
	if len(verr.Issues) == 0 {
		verr.add("", "request", "%s", root.Message)
	}
	return verr
}

func splitInstanceLocation(loc string) (string, string) {
	parts := strings.Split(strings.Trim(loc, "/"), "/")
	switch {
	case len(parts) == 0 || parts[0] == "":
		return "", "request"
	case len(parts) == 1:
		return "", parts[0]
	default:
		return parts[0], strings.Join(parts[1:], ".")
	}
}

func singleIssue(field, reason string) error {
	return &ValidationError{Issues: []FieldIssue{{Field: field, Reason: reason}}}
}
