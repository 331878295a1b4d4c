package milow

import "time"

// Claims represents the claims extracted from a verified caller token.
type Claims struct {
	Subject   string
	Email     string
	Role      string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
	Extra     map[string]any
}

// ServiceAccountCredentials is a Google service account key.
// It is immutable after loading.
type ServiceAccountCredentials struct {
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id,omitempty"`
	ProjectID    string `json:"project_id,omitempty"`
	TokenURI     string `json:"token_uri,omitempty"`
}

// AccessToken is a short-lived bearer token returned by the token endpoint.
type AccessToken struct {
	AccessToken string
	TokenType   string // "Bearer"
	ExpiresIn   int32
	ExpiresAt   time.Time
}

// AuthorizationHeader returns the value for an Authorization header.
func (t *AccessToken) AuthorizationHeader() string {
	return "Bearer " + t.AccessToken
}

// Device recognition labels reported by Play Integrity.
const (
	MeetsBasicIntegrity  = "MEETS_BASIC_INTEGRITY"
	MeetsDeviceIntegrity = "MEETS_DEVICE_INTEGRITY"
	MeetsStrongIntegrity = "MEETS_STRONG_INTEGRITY"
)

// App recognition verdicts reported by Play Integrity.
const (
	AppPlayRecognized      = "PLAY_RECOGNIZED"
	AppUnrecognizedVersion = "UNRECOGNIZED_VERSION"
	AppUnevaluated         = "UNEVALUATED"
)

// IntegrityVerdict is the tokenPayloadExternal section of a decoded
// Play Integrity token. It is read-only.
type IntegrityVerdict struct {
	RequestDetails  *RequestDetails  `json:"requestDetails,omitempty"`
	AppIntegrity    *AppIntegrity    `json:"appIntegrity,omitempty"`
	DeviceIntegrity *DeviceIntegrity `json:"deviceIntegrity,omitempty"`
	AccountDetails  *AccountDetails  `json:"accountDetails,omitempty"`
}

// RequestDetails echoes the request the integrity token was issued for.
type RequestDetails struct {
	RequestPackageName string `json:"requestPackageName,omitempty"`
	RequestHash        string `json:"requestHash,omitempty"`
	TimestampMillis    string `json:"timestampMillis,omitempty"`
}

// AppIntegrity describes how Google Play recognizes the calling binary.
type AppIntegrity struct {
	AppRecognitionVerdict   string   `json:"appRecognitionVerdict,omitempty"`
	PackageName             string   `json:"packageName,omitempty"`
	CertificateSha256Digest []string `json:"certificateSha256Digest,omitempty"`
	VersionCode             string   `json:"versionCode,omitempty"`
}

// DeviceIntegrity carries the device recognition labels.
type DeviceIntegrity struct {
	DeviceRecognitionVerdict []string `json:"deviceRecognitionVerdict,omitempty"`
}

// AccountDetails carries the licensing verdict.
type AccountDetails struct {
	AppLicensingVerdict string `json:"appLicensingVerdict,omitempty"`
}

// DeviceLabels returns the device recognition labels, or nil.
func (v *IntegrityVerdict) DeviceLabels() []string {
	if v == nil || v.DeviceIntegrity == nil {
		return nil
	}
	return v.DeviceIntegrity.DeviceRecognitionVerdict
}

// AppRecognition returns the app recognition verdict, or "".
func (v *IntegrityVerdict) AppRecognition() string {
	if v == nil || v.AppIntegrity == nil {
		return ""
	}
	return v.AppIntegrity.AppRecognitionVerdict
}

// Licensing returns the app licensing verdict, or "".
func (v *IntegrityVerdict) Licensing() string {
	if v == nil || v.AccountDetails == nil {
		return ""
	}
	return v.AccountDetails.AppLicensingVerdict
}

// PackageName returns the package name reported by app integrity, falling
// back to the request echo.
func (v *IntegrityVerdict) PackageName() string {
	if v == nil {
		return ""
	}
	if v.AppIntegrity != nil && v.AppIntegrity.PackageName != "" {
		return v.AppIntegrity.PackageName
	}
	if v.RequestDetails != nil {
		return v.RequestDetails.RequestPackageName
	}
	return ""
}

// ValidationResult is the outcome of applying policy to an IntegrityVerdict.
type ValidationResult struct {
	Valid   bool
	Message string
}

// PushMessage is the notification and data payload sent to a device.
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// Delivery is the outcome of sending a push message to one device.
type Delivery struct {
	Token string
	Err   error
}

// OK reports whether the delivery succeeded.
func (d Delivery) OK() bool { return d.Err == nil }

// Profile is a row of the profiles table.
type Profile struct {
	ID          string `json:"id"`
	Role        string `json:"role,omitempty"`
	RoleID      string `json:"role_id,omitempty"`
	CompanyID   string `json:"company_id,omitempty"`
	CompanyName string `json:"-"`
	FullName    string `json:"full_name,omitempty"`
	FCMToken    string `json:"fcm_token,omitempty"`
	IsVerified  bool   `json:"is_verified,omitempty"`
}

// AuthUser is a user of the managed auth service.
type AuthUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// InviteParams configures an invitation email.
type InviteParams struct {
	Data       map[string]any
	RedirectTo string
}

// CreateUserParams describes a user created directly by an administrator.
type CreateUserParams struct {
	Email        string
	Password     string
	EmailConfirm bool
	UserMetadata map[string]any
}

// ProfileUpdate is the set of profile columns written after an invitation.
type ProfileUpdate struct {
	CompanyID  string `json:"company_id,omitempty"`
	RoleID     string `json:"role_id,omitempty"`
	FullName   string `json:"full_name,omitempty"`
	Role       string `json:"role,omitempty"`
	IsVerified bool   `json:"is_verified"`
}

// UserCredentials is a row of the user_credentials table.
type UserCredentials struct {
	ProfileID          string `json:"profile_id"`
	GeneratedUsername  string `json:"generated_username"`
	MustChangePassword bool   `json:"must_change_password"`
	CreatedBy          string `json:"created_by"`
}

// Announcement is a row of the announcements table (in-app inbox).
type Announcement struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Version  string `json:"version"`
	IsActive bool   `json:"is_active"`
}
