/*
Copyright 2026 Nscale.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// pep440Regexp matches the public version scheme used by Pulp releases,
// e.g. 2.8.0, 2.8.0b4, 2.13.0c1, 2.16.0.dev0 or 2.8.0.post1.
var pep440Regexp = regexp.MustCompile(`(?i)^v?(\d+(?:\.\d+)*)` +
	`(?:[-_.]?(a|alpha|b|beta|c|rc|pre|preview)[-_.]?(\d*))?` +
	`(?:[-_.]?(post|rev|r)[-_.]?(\d*))?` +
	`(?:[-_.]?(dev)[-_.]?(\d*))?` +
	`(?:\+([0-9a-z]+(?:[-_.][0-9a-z]+)*))?$`)

//nolint:gochecknoglobals
var preReleaseKinds = map[string]string{
	"a":       "a",
	"alpha":   "a",
	"b":       "b",
	"beta":    "b",
	"c":       "rc",
	"rc":      "rc",
	"pre":     "rc",
	"preview": "rc",
}

// ParseVersion parses a server or release version. Pulp reports PEP 440
// versions, which are mapped onto semantic versions so they order the same:
// development releases sort before alpha, beta and release candidates, which
// sort before the final release. Post releases and local labels become build
// metadata and so compare equal to the release they follow.
func ParseVersion(version string) (*semver.Version, error) {
	match := pep440Regexp.FindStringSubmatch(strings.TrimSpace(version))
	if match == nil {
		parsed, err := semver.NewVersion(version)
		if err != nil {
			return nil, fmt.Errorf("parsing version %q: %w", version, err)
		}

		return parsed, nil
	}

	release := strings.Split(match[1], ".")
	for len(release) < 3 {
		release = append(release, "0")
	}

	var pre, build []string

	if match[2] != "" {
		pre = append(pre, preReleaseKinds[strings.ToLower(match[2])], number(match[3]))
	}

	if match[6] != "" {
		if pre == nil {
			pre = append(pre, "0")
		}

		pre = append(pre, "dev", number(match[7]))
	}

	for _, segment := range release[3:] {
		build = append(build, number(segment))
	}

	if match[4] != "" {
		build = append(build, "post", number(match[5]))
	}

	if match[8] != "" {
		build = append(build, strings.FieldsFunc(strings.ToLower(match[8]), func(r rune) bool {
			return r == '-' || r == '_' || r == '.'
		})...)
	}

	canonical := fmt.Sprintf("%s.%s.%s", number(release[0]), number(release[1]), number(release[2]))

	if len(pre) > 0 {
		canonical += "-" + strings.Join(pre, ".")
	}

	if len(build) > 0 {
		canonical += "+" + strings.Join(build, ".")
	}

	parsed, err := semver.NewVersion(canonical)
	if err != nil {
		return nil, fmt.Errorf("parsing version %q: %w", version, err)
	}

	return parsed, nil
}

// number drops leading zeros, an empty number is 0.
func number(s string) string {
	n, err := strconv.Atoi(s)
	if err != nil {
		return "0"
	}

	return strconv.Itoa(n)
}
