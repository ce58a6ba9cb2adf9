package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/voice-agent/backend/internal/model/order"
	"github.com/zhouzirui/voice-agent/backend/internal/service/crm"
)

// CRM is the backend surface the built-in tools call into.
type CRM interface {
	FetchOrderSummary(ctx context.Context, phoneNumber string) (*order.Summary, error)
	CaseStatus(ctx context.Context, caseNumber string) (string, error)
	CreateCase(ctx context.Context, details crm.CaseDetails) (json.RawMessage, error)
	UpdateDeliveryDate(ctx context.Context, expectedDeliveryDate string) (json.RawMessage, error)
}

// NewCRMTools builds the four order-support tools over the given backend.
func NewCRMTools(backend CRM) []Tool {
	return []Tool{
		&caseStatusTool{backend: backend},
		&createCaseTool{backend: backend},
		&orderSummaryTool{backend: backend},
		&updateDeliveryDateTool{backend: backend},
	}
}

// NewDefaultRegistry registers the CRM tools.
func NewDefaultRegistry(backend CRM) (*Registry, error) {
	return NewRegistry(NewCRMTools(backend)...)
}

func info(def Definition) *schema.ToolInfo { return def.ToolInfo() }

func decode(kind Kind, argumentsInJSON string, v any) error {
	if err := json.Unmarshal([]byte(argumentsInJSON), v); err != nil {
		return &ValidationError{Tool: string(kind), Reason: err.Error()}
	}
	return nil
}

func prettyJSON(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// case_status

type caseStatusTool struct{ backend CRM }

var caseStatusDefinition = Definition{
	Kind:        KindCaseStatus,
	Description: "Look up the current status of a support case by its case number.",
	Params: map[string]*schema.ParameterInfo{
		"case_number": {Type: schema.String, Desc: "The support case number, for example 00001026.", Required: true},
	},
}

func (t *caseStatusTool) Definition() Definition { return caseStatusDefinition }

func (t *caseStatusTool) Info(context.Context) (*schema.ToolInfo, error) {
	return info(caseStatusDefinition), nil
}

func (t *caseStatusTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		CaseNumber string `json:"case_number"`
	}
	if err := decode(KindCaseStatus, argumentsInJSON, &args); err != nil {
		return "", err
	}
	caseNumber := strings.TrimSpace(args.CaseNumber)
	if caseNumber == "" {
		return "", &ValidationError{Tool: string(KindCaseStatus), Reason: "case_number must not be blank"}
	}

	status, err := t.backend.CaseStatus(ctx, caseNumber)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Case %s status: %s", caseNumber, status), nil
}

// create_case

type createCaseTool struct{ backend CRM }

var createCaseDefinition = Definition{
	Kind:        KindCreateCase,
	Description: "Open a new support case for the caller.",
	Params: map[string]*schema.ParameterInfo{
		"caseDetails": {
			Type:     schema.Object,
			Desc:     "Details of the case to create.",
			Required: true,
			SubParams: map[string]*schema.ParameterInfo{
				"subject":      {Type: schema.String, Desc: "Short summary of the issue.", Required: true},
				"description":  {Type: schema.String, Desc: "Full description of the issue.", Required: true},
				"origin":       {Type: schema.String, Desc: "Channel the case came from, usually Phone.", Required: true},
				"contactName":  {Type: schema.String, Desc: "Name of the caller.", Required: true},
				"contactEmail": {Type: schema.String, Desc: "Email address of the caller.", Required: true},
			},
		},
	},
}

func (t *createCaseTool) Definition() Definition { return createCaseDefinition }

func (t *createCaseTool) Info(context.Context) (*schema.ToolInfo, error) {
	return info(createCaseDefinition), nil
}

func (t *createCaseTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		CaseDetails crm.CaseDetails `json:"caseDetails"`
	}
	if err := decode(KindCreateCase, argumentsInJSON, &args); err != nil {
		return "", err
	}
	if !strings.Contains(args.CaseDetails.ContactEmail, "@") {
		return "", &ValidationError{Tool: string(KindCreateCase), Reason: "contactEmail is not an email address"}
	}

	result, err := t.backend.CreateCase(ctx, args.CaseDetails)
	if err != nil {
		return "", err
	}
	return "Case created successfully: " + prettyJSON(result), nil
}

// order_summary_status

type orderSummaryTool struct{ backend CRM }

var orderSummaryDefinition = Definition{
	Kind:        KindOrderSummary,
	Description: "Fetch the caller's order summary using their phone number.",
	Params: map[string]*schema.ParameterInfo{
		"phone_number": {Type: schema.String, Desc: "Phone number in E.164 format, for example +15551234567.", Required: true},
	},
}

func (t *orderSummaryTool) Definition() Definition { return orderSummaryDefinition }

func (t *orderSummaryTool) Info(context.Context) (*schema.ToolInfo, error) {
	return info(orderSummaryDefinition), nil
}

func (t *orderSummaryTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := decode(KindOrderSummary, argumentsInJSON, &args); err != nil {
		return "", err
	}

	phone := strings.TrimSpace(args.PhoneNumber)
	if phone == "" {
		return "", &ValidationError{Tool: string(KindOrderSummary), Reason: "phone_number must not be blank"}
	}

	summary, err := t.backend.FetchOrderSummary(ctx, phone)
	if err != nil {
		return "", err
	}
	return summary.Format(), nil
}

// update_delivery_date

type updateDeliveryDateTool struct{ backend CRM }

const deliveryDateLayout = "2006-01-02"

var updateDeliveryDateDefinition = Definition{
	Kind:        KindUpdateDeliveryDate,
	Description: "Change the expected delivery date of the caller's order.",
	Params: map[string]*schema.ParameterInfo{
		"expectedDeliveryDate": {Type: schema.String, Desc: "The new expected delivery date in YYYY-MM-DD format.", Required: true},
	},
}

func (t *updateDeliveryDateTool) Definition() Definition { return updateDeliveryDateDefinition }

func (t *updateDeliveryDateTool) Info(context.Context) (*schema.ToolInfo, error) {
	return info(updateDeliveryDateDefinition), nil
}

func (t *updateDeliveryDateTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		ExpectedDeliveryDate string `json:"expectedDeliveryDate"`
	}
	if err := decode(KindUpdateDeliveryDate, argumentsInJSON, &args); err != nil {
		return "", err
	}
	date := strings.TrimSpace(args.ExpectedDeliveryDate)
	if _, err := time.Parse(deliveryDateLayout, date); err != nil {
		return "", &ValidationError{Tool: string(KindUpdateDeliveryDate), Reason: "expectedDeliveryDate must use YYYY-MM-DD"}
	}

	result, err := t.backend.UpdateDeliveryDate(ctx, date)
	if err != nil {
		return "", err
	}
	return "Delivery date updated successfully: " + prettyJSON(result), nil
}
