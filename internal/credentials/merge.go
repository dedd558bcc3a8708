package credentials

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

const (
	joinColumn      = "userId"
	hashColumn      = "hash"
	timestampColumn = "createdAt"
)

// columnRename maps one export column to its import name. Alternate source
// columns for the same target (account→tenantId, password→passwordHash)
// appear in older exports; the first source present in the input wins.
type columnRename struct {
	source string
	target string
}

// renameTable is the fixed projection, in output column order.
var renameTable = []columnRename{
	{source: "name", target: "name"},
	{source: "email", target: "email"},
	{source: "tenantId", target: "tenantId"},
	{source: "account", target: "tenantId"},
	{source: "hash", target: "passwordHash"},
	{source: "password", target: "passwordHash"},
	{source: "phone", target: "phoneNumber"},
	{source: "profilePictureUrl", target: "profilePictureUrl"},
	{source: "authenticatorSecret", target: "authenticatorAppMfaSecret"},
	{source: "additionalFields", target: "metadata"},
	{source: "provider", target: "provider"},
	{source: "verified", target: "verifyUser"},
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// MergeResult is the merged record set plus everything the operator should
// review before importing it.
type MergeResult struct {
	Columns   []string
	Rows      [][]string
	Matched   int
	Unmatched int
	Warnings  []Warning
}

// Merge left-joins user rows onto each user's latest password hash. Every
// user row is emitted exactly once; a user with no usable hash row keeps an
// empty passwordHash. "Latest" is the hash with the maximum createdAt,
// timestamp ties resolved in favor of the later input row.
func Merge(users, hashes *Table) (*MergeResult, error) {
	if users == nil || !users.HasColumn(joinColumn) {
		return nil, fmt.Errorf("user details input has no %s column", joinColumn)
	}

	result := &MergeResult{}

	hashesUsable := hashes.HasColumn(joinColumn) && hashes.HasColumn(hashColumn)
	if hashes != nil && len(hashes.Rows) > 0 && !hashesUsable {
		result.Warnings = append(result.Warnings, Warning{
			Message: fmt.Sprintf("password input lacks %s/%s columns; users are emitted without hashes", joinColumn, hashColumn),
		})
	}
	latest := map[string]string{}
	if hashesUsable {
		latest = latestHashes(hashes, result)
	}

	// Pick one source column per output column, restricted to what the
	// joined input actually has.
	available := make(map[string]bool, len(users.Columns)+1)
	for _, column := range users.Columns {
		available[column] = true
	}
	if hashesUsable {
		available[hashColumn] = true
	}
	var picks []columnRename
	taken := map[string]bool{}
	for _, rename := range renameTable {
		if !available[rename.source] || taken[rename.target] {
			continue
		}
		taken[rename.target] = true
		picks = append(picks, rename)
		result.Columns = append(result.Columns, rename.target)
	}

	firstSeen := map[[2]string]int{}
	for _, row := range users.Rows {
		joined := make(map[string]string, len(row.Fields)+1)
		for column, value := range row.Fields {
			joined[column] = value
		}
		userID := strings.TrimSpace(row.Fields[joinColumn])
		if hash, ok := latest[userID]; ok {
			joined[hashColumn] = hash
			result.Matched++
		} else {
			if hashesUsable {
				joined[hashColumn] = ""
			}
			result.Unmatched++
		}

		values := make([]string, len(picks))
		for i, pick := range picks {
			values[i] = joined[pick.source]
		}
		result.Rows = append(result.Rows, values)

		// Duplicate (email, tenant) pairs import as the same destination
		// user; surface them instead of silently colliding.
		email := strings.ToLower(strings.TrimSpace(row.Fields["email"]))
		if email == "" {
			continue
		}
		key := [2]string{email, strings.TrimSpace(tenantOf(row.Fields))}
		if first, dup := firstSeen[key]; dup {
			result.Warnings = append(result.Warnings, Warning{
				Row:     row.Line,
				Message: fmt.Sprintf("duplicate user %s in tenant %q (first at row %d)", email, key[1], first),
			})
		} else {
			firstSeen[key] = row.Line
		}
	}

	return result, nil
}

// latestHashes reduces the hash table to one hash per user id. Rows without
// a user id or with an unparseable timestamp are ignored with a warning.
func latestHashes(hashes *Table, result *MergeResult) map[string]string {
	type datedHash struct {
		userID string
		hash   string
		at     time.Time
	}
	dated := make([]datedHash, 0, len(hashes.Rows))
	for _, row := range hashes.Rows {
		userID := strings.TrimSpace(row.Fields[joinColumn])
		if userID == "" {
			result.Warnings = append(result.Warnings, Warning{
				Row:     row.Line,
				Message: "hash row has no userId; ignored",
			})
			continue
		}
		at, err := parseTimestamp(row.Fields[timestampColumn])
		if err != nil {
			result.Warnings = append(result.Warnings, Warning{
				Row:     row.Line,
				Message: fmt.Sprintf("unparseable createdAt %q; row ignored", row.Fields[timestampColumn]),
			})
			continue
		}
		dated = append(dated, datedHash{userID: userID, hash: row.Fields[hashColumn], at: at})
	}

	// Oldest first; walking forward leaves the newest hash per user, and
	// the stable sort lets the later input row win a timestamp tie.
	sort.SliceStable(dated, func(i, j int) bool { return dated[i].at.Before(dated[j].at) })
	latest := make(map[string]string, len(dated))
	for _, h := range dated {
		latest[h.userID] = h.hash
	}
	return latest
}

func tenantOf(fields map[string]string) string {
	if value := fields["tenantId"]; strings.TrimSpace(value) != "" {
		return value
	}
	return fields["account"]
}

func parseTimestamp(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if at, err := time.Parse(layout, trimmed); err == nil {
			return at, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", trimmed)
}

// WriteCSV writes the merged record set in the fixed column order.
func WriteCSV(w io.Writer, result *MergeResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(result.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range result.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
