package apihub

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/aws/aws-lambda-go/events"
)

const ClientVersionHeader = "X-Client-Version"

var selfAliases = []string{"me", "my", "self"}

// AssertPathIDIsMyAccount checks that the path parameter names the
// authenticated account, either by id or by one of the aliases me, my and
// self. Anything else throws FORBIDDEN.
func AssertPathIDIsMyAccount(req events.APIGatewayV2HTTPRequest, accountID string, key string) error {
	id, _ := PathParam(req, key)
	if accountID != "" && id == accountID {
		return nil
	}
	for _, alias := range selfAliases {
		if strings.EqualFold(id, alias) {
			return nil
		}
	}
	return ThrowResponse(CodeForbidden)
}

// AssertMinClientVersion throws CLIENT_VERSION_INVALID when the client
// version header is missing or malformed and CLIENT_VERSION_DEPRECATED when
// it is older than minVersion. An invalid minVersion is an issue.
func AssertMinClientVersion(req events.APIGatewayV2HTTPRequest, minVersion string) error {
	minimum, err := semver.NewVersion(minVersion)
	if err != nil {
		return NewIssue("minimum client version "+minVersion+" is not a semantic version", err)
	}

	header, ok := Header(req, ClientVersionHeader)
	if !ok || strings.TrimSpace(header) == "" {
		return ThrowResponse(CodeClientVersionInvalid)
	}
	version, err := semver.StrictNewVersion(strings.TrimSpace(header))
	if err != nil {
		return ThrowResponse(CodeClientVersionInvalid)
	}
	if version.LessThan(minimum) {
		return ThrowResponse(CodeClientVersionDeprecated)
	}
	return nil
}
