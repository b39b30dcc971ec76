package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeForbidden        = "FORBIDDEN"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeInvalidContent   = "INVALID_CONTENT"
	CodeInvalidUsername  = "INVALID_USERNAME"
	CodeInvalidProfile   = "INVALID_PROFILE"
	CodeAlreadyExists    = "ALREADY_EXISTS"
	CodeUsernameTaken    = "USERNAME_TAKEN"
	CodeAlreadyFollowing = "ALREADY_FOLLOWING"
	CodeNotFollowing     = "NOT_FOLLOWING"
	CodeSelfFollow       = "SELF_FOLLOW"
	CodeNotFound         = "NOT_FOUND"
	CodeInternal         = "INTERNAL"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		// Identity errors
		CodeUnauthenticated: "You must be signed in to do that",
		CodeForbidden:       "You can only change your own {{.Resource}}",

		// Validation errors
		CodeInvalidArgument: "The request is invalid",
		CodeInvalidContent:  "Post content {{.Reason}}",
		CodeInvalidUsername: "Username {{.Reason}}",
		CodeInvalidProfile:  "Profile {{.Reason}}",

		// User errors
		CodeAlreadyExists: "A profile already exists for this account",
		CodeUsernameTaken: "Username {{.Username}} is already taken",

		// Follow graph errors
		CodeAlreadyFollowing: "You already follow this user",
		CodeNotFollowing:     "You do not follow this user",
		CodeSelfFollow:       "You cannot follow yourself",

		// Storage errors
		CodeNotFound: "The requested {{.Resource}} was not found",
		CodeInternal: "Something went wrong, please try again",
	},
}
