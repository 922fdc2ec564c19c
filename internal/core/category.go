package core

import (
	"fmt"
	"strings"
)

const (
	CategoryGeneral       = "general"
	CategoryPlumbing      = "plumbing"
	CategoryElectrical    = "electrical"
	CategoryConstruction  = "construction"
	CategoryLandscaping   = "landscaping"
	CategoryCleaning      = "cleaning"
	CategoryLegal         = "legal"
	CategoryConsulting    = "consulting"
	CategoryPhotography   = "photography"
	CategoryMedical       = "medical"
	CategoryAutomotive    = "automotive"
	CategoryCatering      = "catering"
	CategoryEventPlanning = "event_planning"
	CategoryRealEstate    = "real_estate"
	CategoryFreelance     = "freelance"
	CategoryITServices    = "it_services"
	CategoryEducation     = "education"
	CategoryInsurance     = "insurance"
)

// Categories lists every business category, general first.
func Categories() []string {
	return []string{
		CategoryGeneral, CategoryPlumbing, CategoryElectrical, CategoryConstruction,
		CategoryLandscaping, CategoryCleaning, CategoryLegal, CategoryConsulting,
		CategoryPhotography, CategoryMedical, CategoryAutomotive, CategoryCatering,
		CategoryEventPlanning, CategoryRealEstate, CategoryFreelance, CategoryITServices,
		CategoryEducation, CategoryInsurance,
	}
}

// IsCategory reports whether c names a known category. Empty means general.
func IsCategory(c string) bool {
	if c == "" {
		return true
	}
	for _, v := range Categories() {
		if v == c {
			return true
		}
	}
	return false
}

// CategoryLabel turns "event_planning" into "Event Planning".
func CategoryLabel(c string) string {
	if c == "" {
		c = CategoryGeneral
	}
	if c == CategoryITServices {
		return "IT Services"
	}
	parts := strings.Split(c, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

type (
	PlumbingDetails struct {
		JobSite        string `json:"job_site,omitempty"`
		LicenseNumber  string `json:"license_number,omitempty"`
		PermitNumber   string `json:"permit_number,omitempty"`
		WorkOrder      string `json:"work_order,omitempty"`
		WarrantyMonths int    `json:"warranty_months,omitempty"`
	}

	ElectricalDetails struct {
		JobSite        string `json:"job_site,omitempty"`
		LicenseNumber  string `json:"license_number,omitempty"`
		PermitNumber   string `json:"permit_number,omitempty"`
		InspectionDate string `json:"inspection_date,omitempty"`
		Voltage        string `json:"voltage,omitempty"`
	}

	ConstructionDetails struct {
		ProjectName     string `json:"project_name,omitempty"`
		ProjectAddress  string `json:"project_address,omitempty"`
		ContractNumber  string `json:"contract_number,omitempty"`
		Phase           string `json:"phase,omitempty"`
		RetainagePct    int    `json:"retainage_pct,omitempty"`
		CompletionPct   int    `json:"completion_pct,omitempty"`
		PermitNumber    string `json:"permit_number,omitempty"`
		ArchitectOfWork string `json:"architect,omitempty"`
	}

	LandscapingDetails struct {
		PropertyAddress string `json:"property_address,omitempty"`
		PropertySize    string `json:"property_size,omitempty"`
		ServiceSchedule string `json:"service_schedule,omitempty"`
		Season          string `json:"season,omitempty"`
	}

	CleaningDetails struct {
		ServiceAddress string `json:"service_address,omitempty"`
		Frequency      string `json:"frequency,omitempty"`
		Rooms          int    `json:"rooms,omitempty"`
		SquareFeet     int    `json:"square_feet,omitempty"`
	}

	LegalDetails struct {
		CaseNumber    string `json:"case_number,omitempty"`
		MatterName    string `json:"matter_name,omitempty"`
		Court         string `json:"court,omitempty"`
		Attorney      string `json:"attorney,omitempty"`
		BarNumber     string `json:"bar_number,omitempty"`
		RetainerApply bool   `json:"retainer_applied,omitempty"`
	}

	ConsultingDetails struct {
		ProjectName    string `json:"project_name,omitempty"`
		EngagementRef  string `json:"engagement_ref,omitempty"`
		PeriodStart    string `json:"period_start,omitempty"`
		PeriodEnd      string `json:"period_end,omitempty"`
		PurchaseOrder  string `json:"purchase_order,omitempty"`
		ConsultantName string `json:"consultant,omitempty"`
	}

	PhotographyDetails struct {
		EventName      string `json:"event_name,omitempty"`
		ShootDate      string `json:"shoot_date,omitempty"`
		Location       string `json:"location,omitempty"`
		ImagesDelivery string `json:"images_delivery,omitempty"`
		UsageRights    string `json:"usage_rights,omitempty"`
	}

	MedicalDetails struct {
		PatientName    string `json:"patient_name,omitempty"`
		PatientID      string `json:"patient_id,omitempty"`
		Provider       string `json:"provider,omitempty"`
		NPI            string `json:"npi,omitempty"`
		InsurancePlan  string `json:"insurance_plan,omitempty"`
		ServiceDate    string `json:"service_date,omitempty"`
		DiagnosisCodes string `json:"diagnosis_codes,omitempty"`
	}

	AutomotiveDetails struct {
		VehicleMake  string `json:"vehicle_make,omitempty"`
		VehicleModel string `json:"vehicle_model,omitempty"`
		VehicleYear  int    `json:"vehicle_year,omitempty"`
		VIN          string `json:"vin,omitempty"`
		Plate        string `json:"plate,omitempty"`
		Mileage      int    `json:"mileage,omitempty"`
		Technician   string `json:"technician,omitempty"`
	}

	CateringDetails struct {
		EventName  string `json:"event_name,omitempty"`
		EventDate  string `json:"event_date,omitempty"`
		Venue      string `json:"venue,omitempty"`
		Guests     int    `json:"guests,omitempty"`
		MenuChoice string `json:"menu,omitempty"`
		Dietary    string `json:"dietary,omitempty"`
	}

	EventPlanningDetails struct {
		EventName   string `json:"event_name,omitempty"`
		EventDate   string `json:"event_date,omitempty"`
		Venue       string `json:"venue,omitempty"`
		Guests      int    `json:"guests,omitempty"`
		Coordinator string `json:"coordinator,omitempty"`
	}

	RealEstateDetails struct {
		PropertyAddress string `json:"property_address,omitempty"`
		MLSNumber       string `json:"mls_number,omitempty"`
		Agent           string `json:"agent,omitempty"`
		LicenseNumber   string `json:"license_number,omitempty"`
		ClosingDate     string `json:"closing_date,omitempty"`
		CommissionPct   string `json:"commission_pct,omitempty"`
	}

	FreelanceDetails struct {
		ProjectName   string `json:"project_name,omitempty"`
		PortfolioURL  string `json:"portfolio_url,omitempty"`
		PaymentMethod string `json:"payment_method,omitempty"`
		HourlyRate    string `json:"hourly_rate,omitempty"`
	}

	ITServicesDetails struct {
		TicketNumber   string `json:"ticket_number,omitempty"`
		ContractRef    string `json:"contract_ref,omitempty"`
		SLA            string `json:"sla,omitempty"`
		Environment    string `json:"environment,omitempty"`
		SupportPeriod  string `json:"support_period,omitempty"`
		AssetsCovered  int    `json:"assets_covered,omitempty"`
		EngineerOnCall string `json:"engineer,omitempty"`
	}

	EducationDetails struct {
		StudentName string `json:"student_name,omitempty"`
		StudentID   string `json:"student_id,omitempty"`
		CourseName  string `json:"course_name,omitempty"`
		Term        string `json:"term,omitempty"`
		Instructor  string `json:"instructor,omitempty"`
	}

	InsuranceDetails struct {
		PolicyNumber   string `json:"policy_number,omitempty"`
		PolicyType     string `json:"policy_type,omitempty"`
		Insurer        string `json:"insurer,omitempty"`
		CoverageStart  string `json:"coverage_start,omitempty"`
		CoverageEnd    string `json:"coverage_end,omitempty"`
		CoverageAmount string `json:"coverage_amount,omitempty"`
		Deductible     string `json:"deductible,omitempty"`
		ClaimNumber    string `json:"claim_number,omitempty"`
	}

	// CategoryDetails carries the category specific panel. At most the block
	// matching the document category is set.
	CategoryDetails struct {
		Plumbing      *PlumbingDetails      `json:"plumbing,omitempty"`
		Electrical    *ElectricalDetails    `json:"electrical,omitempty"`
		Construction  *ConstructionDetails  `json:"construction,omitempty"`
		Landscaping   *LandscapingDetails   `json:"landscaping,omitempty"`
		Cleaning      *CleaningDetails      `json:"cleaning,omitempty"`
		Legal         *LegalDetails         `json:"legal,omitempty"`
		Consulting    *ConsultingDetails    `json:"consulting,omitempty"`
		Photography   *PhotographyDetails   `json:"photography,omitempty"`
		Medical       *MedicalDetails       `json:"medical,omitempty"`
		Automotive    *AutomotiveDetails    `json:"automotive,omitempty"`
		Catering      *CateringDetails      `json:"catering,omitempty"`
		EventPlanning *EventPlanningDetails `json:"event_planning,omitempty"`
		RealEstate    *RealEstateDetails    `json:"real_estate,omitempty"`
		Freelance     *FreelanceDetails     `json:"freelance,omitempty"`
		ITServices    *ITServicesDetails    `json:"it_services,omitempty"`
		Education     *EducationDetails     `json:"education,omitempty"`
		Insurance     *InsuranceDetails     `json:"insurance,omitempty"`
	}
)

// set returns the categories whose block is present.
func (c CategoryDetails) set() []string {
	var out []string
	add := func(ok bool, name string) {
		if ok {
			out = append(out, name)
		}
	}
	add(c.Plumbing != nil, CategoryPlumbing)
	add(c.Electrical != nil, CategoryElectrical)
	add(c.Construction != nil, CategoryConstruction)
	add(c.Landscaping != nil, CategoryLandscaping)
	add(c.Cleaning != nil, CategoryCleaning)
	add(c.Legal != nil, CategoryLegal)
	add(c.Consulting != nil, CategoryConsulting)
	add(c.Photography != nil, CategoryPhotography)
	add(c.Medical != nil, CategoryMedical)
	add(c.Automotive != nil, CategoryAutomotive)
	add(c.Catering != nil, CategoryCatering)
	add(c.EventPlanning != nil, CategoryEventPlanning)
	add(c.RealEstate != nil, CategoryRealEstate)
	add(c.Freelance != nil, CategoryFreelance)
	add(c.ITServices != nil, CategoryITServices)
	add(c.Education != nil, CategoryEducation)
	add(c.Insurance != nil, CategoryInsurance)
	return out
}

// Empty reports whether no category block is set.
func (c CategoryDetails) Empty() bool { return len(c.set()) == 0 }

// Validate checks that only the block of the given category is filled in.
func (c CategoryDetails) Validate(category string) error {
	if !IsCategory(category) {
		return fmt.Errorf("unknown category %q", category)
	}
	for _, name := range c.set() {
		if name != category {
			return fmt.Errorf("details for %q on a %q document", name, CategoryLabel(category))
		}
	}
	if c.Construction != nil {
		if p := c.Construction.RetainagePct; p < 0 || p > 100 {
			return fmt.Errorf("construction retainage %d%% out of range", p)
		}
		if p := c.Construction.CompletionPct; p < 0 || p > 100 {
			return fmt.Errorf("construction completion %d%% out of range", p)
		}
	}
	if c.Automotive != nil && c.Automotive.VIN != "" && len(c.Automotive.VIN) != 17 {
		return fmt.Errorf("vin must be 17 characters, got %d", len(c.Automotive.VIN))
	}
	return nil
}
