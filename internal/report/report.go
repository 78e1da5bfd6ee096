// Package report aggregates users into referral report rows and renders them.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/Dan9191/referral-service/internal/models"
	"github.com/beevik/etree"
)

// NoReferrer is written in place of a missing referrer id
const NoReferrer = "N/A"

// Header is the CSV header row
var Header = []string{"User ID", "Email", "Referral Code", "Referrer ID", "Profile Completed", "Successful Referrals"}

// Build returns one row per user, in the order given. A successful referral
// is a direct referral whose own profile is completed; chains are not followed.
func Build(users []models.User) []models.ReferralReportRow {
	successful := make(map[int64]int, len(users))
	for _, u := range users {
		if u.ReferrerID != nil && u.ProfileCompleted {
			successful[*u.ReferrerID]++
		}
	}

	rows := make([]models.ReferralReportRow, 0, len(users))
	for _, u := range users {
		rows = append(rows, models.ReferralReportRow{
			UserID:              u.ID,
			Email:               u.Email,
			ReferralCode:        u.ReferralCode,
			ReferrerID:          u.ReferrerID,
			ProfileCompleted:    u.ProfileCompleted,
			SuccessfulReferrals: successful[u.ID],
		})
	}
	return rows
}

// CSV renders rows with a header line
func CSV(rows []models.ReferralReportRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("failed to write report header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.UserID, 10),
			row.Email,
			row.ReferralCode,
			referrerField(row.ReferrerID),
			strconv.FormatBool(row.ProfileCompleted),
			strconv.Itoa(row.SuccessfulReferrals),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write report row %d: %w", row.UserID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush report: %w", err)
	}
	return buf.Bytes(), nil
}

// XML renders rows as a <referralReport> document
func XML(rows []models.ReferralReportRow) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("referralReport")
	root.CreateAttr("users", strconv.Itoa(len(rows)))
	for _, row := range rows {
		el := root.CreateElement("user")
		el.CreateAttr("id", strconv.FormatInt(row.UserID, 10))
		el.CreateElement("email").SetText(row.Email)
		el.CreateElement("referralCode").SetText(row.ReferralCode)
		el.CreateElement("referrerId").SetText(referrerField(row.ReferrerID))
		el.CreateElement("profileCompleted").SetText(strconv.FormatBool(row.ProfileCompleted))
		el.CreateElement("successfulReferrals").SetText(strconv.Itoa(row.SuccessfulReferrals))
	}

	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to render XML report: %w", err)
	}
	return out, nil
}

func referrerField(id *int64) string {
	if id == nil {
		return NoReferrer
	}
	return strconv.FormatInt(*id, 10)
}
