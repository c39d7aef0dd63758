package license

import "net/http"

// Code is the stable machine-readable outcome of a pipeline run
type Code string

const (
	CodeValid              Code = "VALID"
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeRateLimited        Code = "RATE_LIMIT"
	CodeTeamNotFound       Code = "TEAM_NOT_FOUND"
	CodeLicenseNotFound    Code = "LICENSE_NOT_FOUND"
	CodeIPBlacklisted      Code = "IP_BLACKLISTED"
	CodeCountryBlacklisted Code = "COUNTRY_BLACKLISTED"
	CodeDeviceBlacklisted  Code = "DEVICE_IDENTIFIER_BLACKLISTED"
	CodeCustomerNotFound   Code = "CUSTOMER_NOT_FOUND"
	CodeProductNotFound    Code = "PRODUCT_NOT_FOUND"
	CodeReleaseNotFound    Code = "RELEASE_NOT_FOUND"
	CodeLicenseSuspended   Code = "LICENSE_SUSPENDED"
	CodeLicenseExpired     Code = "LICENSE_EXPIRED"
	CodeIPLimitReached     Code = "IP_LIMIT_REACHED"
	CodeMaxConcurrentSeats Code = "MAXIMUM_CONCURRENT_SEATS"
	CodeForbidden          Code = "FORBIDDEN"
	CodeReleaseDraft       Code = "RELEASE_DRAFT"
	CodeReleaseArchived    Code = "RELEASE_ARCHIVED"
	CodeNoAccessToRelease  Code = "NO_ACCESS_TO_RELEASE"
	CodeInvalidSessionKey  Code = "INVALID_SESSION_KEY"
	CodeInternalError      Code = "INTERNAL_SERVER_ERROR"
)

type codeInfo struct {
	status  int
	message string
}

var codeTable = map[Code]codeInfo{
	CodeValid:              {http.StatusOK, "License is valid"},
	CodeBadRequest:         {http.StatusBadRequest, "Invalid request"},
	CodeRateLimited:        {http.StatusTooManyRequests, "Too many requests, try again later"},
	CodeTeamNotFound:       {http.StatusNotFound, "Team not found"},
	CodeLicenseNotFound:    {http.StatusNotFound, "License not found"},
	CodeIPBlacklisted:      {http.StatusForbidden, "IP address is blacklisted"},
	CodeCountryBlacklisted: {http.StatusForbidden, "Country is blacklisted"},
	CodeDeviceBlacklisted:  {http.StatusForbidden, "Device identifier is blacklisted"},
	CodeCustomerNotFound:   {http.StatusNotFound, "Customer not found"},
	CodeProductNotFound:    {http.StatusNotFound, "Product not found"},
	CodeReleaseNotFound:    {http.StatusNotFound, "Release not found"},
	CodeLicenseSuspended:   {http.StatusForbidden, "License is suspended"},
	CodeLicenseExpired:     {http.StatusForbidden, "License has expired"},
	CodeIPLimitReached:     {http.StatusForbidden, "IP address limit reached"},
	CodeMaxConcurrentSeats: {http.StatusForbidden, "Maximum concurrent seats reached"},
	CodeForbidden:          {http.StatusForbidden, "Not allowed by the current plan"},
	CodeReleaseDraft:       {http.StatusForbidden, "Release is a draft"},
	CodeReleaseArchived:    {http.StatusForbidden, "Release is archived"},
	CodeNoAccessToRelease:  {http.StatusForbidden, "License has no access to this release"},
	CodeInvalidSessionKey:  {http.StatusBadRequest, "Invalid session key"},
	CodeInternalError:      {http.StatusInternalServerError, "Internal server error"},
}

// HTTPStatus maps the code to its transport status
func (c Code) HTTPStatus() int {
	if info, ok := codeTable[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Message is the human readable description sent to callers
func (c Code) Message() string {
	if info, ok := codeTable[c]; ok {
		return info.message
	}
	return codeTable[CodeInternalError].message
}

// Codes returns every known code
func Codes() []Code {
	codes := make([]Code, 0, len(codeTable))
	for c := range codeTable {
		codes = append(codes, c)
	}
	return codes
}

// Verdict is the outcome of one pipeline run. The ID fields hold whatever was
// resolved before the pipeline stopped and are meant for logging.
type Verdict struct {
	Code              Code
	ChallengeResponse *string

	TeamID           string
	LicenseID        string
	CustomerID       string
	ProductID        string
	ReleaseID        string
	ReleaseVersion   string
	DeviceIdentifier string

	// Err is the infrastructure cause of CodeInternalError
	Err error
}

// Valid reports whether the caller was admitted
func (v Verdict) Valid() bool {
	return v.Code == CodeValid
}
