/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures of the HTTP API. Request types carry
  go-playground/validator tags; anything the tags cannot express (decimal
  ranges, date ordering) is checked by the domain constructors and comes
  back as a generic.ValidationError.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts are decimal strings on the wire ("30000", "0.0517") so no value
  passes through float64.

SEE ALSO:
  - handlers.go: Uses these types
  - payroll/record.go: SalaryRecord, SalaryItem
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/salaryitem"
)

// =============================================================================
// EMPLOYEES AND LEAVE
// =============================================================================

type EmployeeDTO struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Department string          `json:"department,omitempty"`
	SalaryKind string          `json:"salaryKind"`
	SalaryRate decimal.Decimal `json:"salaryRate"`
}

type PutEmployeeRequest struct {
	ID         string          `json:"id" validate:"required,max=64"`
	Name       string          `json:"name" validate:"required,max=200"`
	Department string          `json:"department" validate:"max=200"`
	SalaryKind string          `json:"salaryKind" validate:"required,oneof=monthly daily hourly"`
	SalaryRate decimal.Decimal `json:"salaryRate"`
}

type AddLeaveRequest struct {
	ID        string          `json:"id" validate:"required"`
	Type      string          `json:"type" validate:"required,oneof=personal sick annual"`
	Status    string          `json:"status" validate:"required,oneof=pending pending_confirmation approved rejected"`
	StartDate string          `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string          `json:"endDate" validate:"required,datetime=2006-01-02"`
	Days      decimal.Decimal `json:"days"`
	Reason    string          `json:"reason"`
}

type SetAttendanceRequest struct {
	Period   string          `json:"period" validate:"required,datetime=2006-01"`
	WorkDays decimal.Decimal `json:"workDays"`
}

type SetParameterRequest struct {
	Key           string `json:"key" validate:"required"`
	Value         string `json:"value" validate:"required"`
	EffectiveDate string `json:"effectiveDate" validate:"required,datetime=2006-01-02"`
	ExpiryDate    string `json:"expiryDate" validate:"omitempty,datetime=2006-01-02"`
}

// =============================================================================
// RATE TABLES
// =============================================================================

type RateTableRequest struct {
	Version             string          `json:"version" validate:"required,max=50"`
	EffectiveDate       string          `json:"effectiveDate" validate:"required,datetime=2006-01-02"`
	ExpiryDate          string          `json:"expiryDate" validate:"omitempty,datetime=2006-01-02"`
	LaborInsuranceRate  decimal.Decimal `json:"laborInsuranceRate"`
	HealthInsuranceRate decimal.Decimal `json:"healthInsuranceRate"`
	Description         string          `json:"description" validate:"max=500"`
}

// =============================================================================
// SALARY ITEMS
// =============================================================================

type SalaryItemRequest struct {
	ItemCode       string           `json:"itemCode" validate:"required,max=50"`
	ItemName       string           `json:"itemName" validate:"required,max=100"`
	Type           string           `json:"type" validate:"required,oneof=Addition Deduction"`
	Method         string           `json:"calculationMethod" validate:"required,oneof=Fixed Hourly Percentage"`
	Amount         *decimal.Decimal `json:"amount"`
	HourlyRate     *decimal.Decimal `json:"hourlyRate"`
	PercentageRate *decimal.Decimal `json:"percentageRate"`
	IsActive       *bool            `json:"isActive"`
	EffectiveDate  string           `json:"effectiveDate" validate:"required,datetime=2006-01-02"`
	ExpiryDate     string           `json:"expiryDate" validate:"omitempty,datetime=2006-01-02"`
	Description    string           `json:"description" validate:"max=500"`
}

// =============================================================================
// PAYROLL
// =============================================================================

type ItemInputRequest struct {
	Code     string          `json:"code" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

type CalculateRequest struct {
	EmployeeID        string             `json:"employeeId" validate:"required"`
	Period            string             `json:"period" validate:"required,datetime=2006-01"`
	CopyPreviousMonth bool               `json:"copyPreviousMonth"`
	OvertimeHours     decimal.Decimal    `json:"overtimeHours"`
	Items             []ItemInputRequest `json:"items" validate:"dive"`
}

type BatchRequest struct {
	EmployeeIDs       []string `json:"employeeIds" validate:"required,min=1,dive,required"`
	Period            string   `json:"period" validate:"required,datetime=2006-01"`
	CopyPreviousMonth bool     `json:"copyPreviousMonth"`
}

type CloseYearRequest struct {
	Year int `json:"year" validate:"required,min=1900,max=9999"`
}

type SalaryItemDTO struct {
	ItemCode          string              `json:"itemCode"`
	ItemName          string              `json:"itemName"`
	Type              salaryitem.ItemType `json:"type"`
	Amount            decimal.Decimal     `json:"amount"`
	Description       string              `json:"description,omitempty"`
	IsSystemGenerated bool                `json:"isSystemGenerated"`
	UsedDefault       bool                `json:"usedDefault,omitempty"`
}

// SalaryRecordDTO shows a record with its gross and net opened.
type SalaryRecordDTO struct {
	ID               string          `json:"id"`
	EmployeeID       string          `json:"employeeId"`
	Period           string          `json:"period"`
	BaseSalary       decimal.Decimal `json:"baseSalary"`
	TotalAdditions   decimal.Decimal `json:"totalAdditions"`
	TotalDeductions  decimal.Decimal `json:"totalDeductions"`
	GrossSalary      decimal.Decimal `json:"grossSalary"`
	NetSalary        decimal.Decimal `json:"netSalary"`
	RateTableVersion string          `json:"rateTableVersion"`
	Status           payroll.Status  `json:"status"`
	IsYearEndClosed  bool            `json:"isYearEndClosed"`
	ApprovedBy       generic.Actor   `json:"approvedBy,omitempty"`
	ApprovedAt       *time.Time      `json:"approvedAt,omitempty"`
	PaidAt           *time.Time      `json:"paidAt,omitempty"`
	CreatedBy        generic.Actor   `json:"createdBy,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	Items            []SalaryItemDTO `json:"items"`
}

type BatchResultDTO struct {
	EmployeeID string           `json:"employeeId"`
	Record     *SalaryRecordDTO `json:"record,omitempty"`
	Error      *ErrorResponse   `json:"error,omitempty"`
}

type CloseYearResponse struct {
	Year   int `json:"year"`
	Closed int `json:"closed"`
}

// =============================================================================
// CALCULATION PREVIEWS
// =============================================================================

type BaseSalaryPreviewRequest struct {
	EmployeeID    string          `json:"employeeId" validate:"required"`
	Period        string          `json:"period" validate:"required,datetime=2006-01"`
	WorkDays      decimal.Decimal `json:"workDays"`
	TotalWorkDays decimal.Decimal `json:"totalWorkDays"`
}

type EmployeePeriodRequest struct {
	EmployeeID string `json:"employeeId" validate:"required"`
	Period     string `json:"period" validate:"required,datetime=2006-01"`
}

type OvertimePreviewRequest struct {
	EmployeeID string          `json:"employeeId" validate:"required"`
	Period     string          `json:"period" validate:"required,datetime=2006-01"`
	Hours      decimal.Decimal `json:"hours"`
}

type IncomeTaxPreviewRequest struct {
	EmployeeID  string          `json:"employeeId" validate:"required"`
	Period      string          `json:"period" validate:"required,datetime=2006-01"`
	GrossSalary decimal.Decimal `json:"grossSalary"`
}

type InsurancePreviewRequest struct {
	Salary decimal.Decimal `json:"salary"`
	Period string          `json:"period" validate:"required,datetime=2006-01"`
}

// ProgressiveTaxRequest prices on the schedule loaded for Year; when Year is
// omitted or has no loaded schedule the default schedule applies.
type ProgressiveTaxRequest struct {
	Year         int             `json:"year,omitempty"`
	AnnualIncome decimal.Decimal `json:"annualIncome"`
	Deductions   decimal.Decimal `json:"deductions"`
	Exemptions   decimal.Decimal `json:"exemptions"`
}

// ProgressiveTaxDTO reports which schedule priced the amount.
type ProgressiveTaxDTO struct {
	Amount          decimal.Decimal `json:"amount"`
	Year            int             `json:"year,omitempty"`
	DefaultSchedule bool            `json:"defaultSchedule"`
}

type AmountDTO struct {
	Amount decimal.Decimal `json:"amount"`
}

type LeaveDeductionDTO struct {
	Amount    decimal.Decimal `json:"amount"`
	Days      decimal.Decimal `json:"days"`
	DailyRate decimal.Decimal `json:"dailyRate"`
	Records   []string        `json:"records"`
}

type OvertimeDTO struct {
	Amount      decimal.Decimal `json:"amount"`
	HourlyRate  decimal.Decimal `json:"hourlyRate"`
	Hours       decimal.Decimal `json:"hours"`
	UsedDefault bool            `json:"usedDefault"`
}

type WithholdingDTO struct {
	Amount            decimal.Decimal `json:"amount"`
	IncomeToDate      decimal.Decimal `json:"incomeToDate"`
	StandardDeduction decimal.Decimal `json:"standardDeduction"`
	PersonalExemption decimal.Decimal `json:"personalExemption"`
	TaxableIncome     decimal.Decimal `json:"taxableIncome"`
	ProjectedTax      decimal.Decimal `json:"projectedTax"`
	WithheldToDate    decimal.Decimal `json:"withheldToDate"`
	Divisor           int             `json:"divisor"`
	MarginalRate      decimal.Decimal `json:"marginalRate"`
}

type ContributionDTO struct {
	Amount        decimal.Decimal `json:"amount"`
	InsurableBase decimal.Decimal `json:"insurableBase"`
	Rate          decimal.Decimal `json:"rate"`
	Share         decimal.Decimal `json:"share"`
	Version       string          `json:"version"`
	UsedDefault   bool            `json:"usedDefault"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}
