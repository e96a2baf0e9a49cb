package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/middleware"
	"github.com/iliyamo/journal-portal/internal/model"
	"github.com/iliyamo/journal-portal/internal/repository"
	"github.com/iliyamo/journal-portal/internal/utils"
)

// Profile returns the completion flag and the stored author profile.
func (h *AuthHandler) Profile(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{
		"isProfileComplete": u.IsProfileComplete,
		"authorProfile":     u.AuthorProfile,
		"role":              u.Role,
		"email":             u.Email,
	})
}

type completeProfileReq struct {
	Title            string `json:"title"`
	FullName         string `json:"fullName"`
	Gender           string `json:"gender"`
	DateOfBirth      string `json:"dateOfBirth"`
	AlternativeEmail string `json:"alternativeEmail"`
	PhoneNumber      string `json:"phoneNumber"`
	Position         string `json:"currentPosition"`
	Institution      string `json:"institution"`
	Department       string `json:"department"`
	Country          string `json:"country"`
	Address          string `json:"institutionalAddress"`
	Degrees          string `json:"degrees"`
	ORCID            string `json:"orcid"`
	ScopusID         string `json:"scopusId"`
	ResearchGate     string `json:"researchGate"`
	GoogleScholar    string `json:"googleScholar"`
	AreasOfExpertise string `json:"areasOfExpertise"`
}

// identifierErrors validates the optional academic identifiers.
func identifierErrors(orcid, scopus, researchGate string) []apperr.ValidationError {
	var errs []apperr.ValidationError
	if orcid != "" && !utils.ValidORCID(orcid) {
		errs = append(errs, apperr.ValidationError{Field: "orcid", Message: "ORCID must look like 0000-0000-0000-000X"})
	}
	if scopus != "" && !utils.ValidScopusID(scopus) {
		errs = append(errs, apperr.ValidationError{Field: "scopusId", Message: "Scopus ID must be 8 digits"})
	}
	if researchGate != "" && !utils.ValidResearchGate(researchGate) {
		errs = append(errs, apperr.ValidationError{Field: "researchGate", Message: "ResearchGate must be a profile URL"})
	}
	return errs
}

// CompleteProfile stores the first author profile and marks the account
// complete. It can be done once.
func (h *AuthHandler) CompleteProfile(c echo.Context) error {
	var req completeProfileReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	errs := required(map[string]string{"title": req.Title, "fullName": req.FullName, "gender": req.Gender})
	errs = append(errs, identifierErrors(req.ORCID, req.ScopusID, req.ResearchGate)...)
	if len(errs) > 0 {
		return apperr.Validation(errs)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	uid := middleware.UserID(c)
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return err
	}
	if u.IsProfileComplete {
		return apperr.BadRequest("profile is already complete")
	}

	var p model.AuthorProfile
	p.PersonalInfo.Title = strings.TrimSpace(req.Title)
	p.PersonalInfo.FullName = strings.TrimSpace(req.FullName)
	p.PersonalInfo.Gender = strings.TrimSpace(req.Gender)
	p.PersonalInfo.DateOfBirth = req.DateOfBirth
	p.ContactInfo.PrimaryEmail = u.Email
	p.ContactInfo.AlternativeEmail = req.AlternativeEmail
	p.ContactInfo.PhoneNumber = req.PhoneNumber
	p.Affiliation.CurrentPosition = req.Position
	p.Affiliation.Institution = req.Institution
	p.Affiliation.Department = req.Department
	p.Affiliation.Country = req.Country
	p.Affiliation.InstitutionalAddress = req.Address
	p.AcademicInfo.Degrees = req.Degrees
	p.AcademicInfo.ORCID = req.ORCID
	p.AcademicInfo.ScopusID = req.ScopusID
	p.AcademicInfo.ResearchGate = req.ResearchGate
	p.AcademicInfo.GoogleScholar = req.GoogleScholar
	p.AreasOfExpertise = req.AreasOfExpertise

	note := &model.Notification{
		RecipientID: uid,
		Type:        model.NotifyProfileCompleted,
		Message:     "Your profile is complete. You can now submit manuscripts.",
	}
	if err := h.Users.CompleteProfile(ctx, uid, &p, note); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return apperr.BadRequest("profile is already complete")
		}
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"isProfileComplete": true, "authorProfile": p})
}

// missingAuthorFields lists every required author profile field that is
// blank, by dotted path.
func missingAuthorFields(p *model.AuthorProfile) []apperr.ValidationError {
	fields := map[string]string{
		"personalInfo.fullName":            p.PersonalInfo.FullName,
		"personalInfo.title":               p.PersonalInfo.Title,
		"personalInfo.gender":              p.PersonalInfo.Gender,
		"contactInfo.primaryEmail":         p.ContactInfo.PrimaryEmail,
		"affiliation.currentPosition":      p.Affiliation.CurrentPosition,
		"affiliation.institution":          p.Affiliation.Institution,
		"affiliation.department":           p.Affiliation.Department,
		"affiliation.country":              p.Affiliation.Country,
		"affiliation.institutionalAddress": p.Affiliation.InstitutionalAddress,
		"academicInfo.degrees":             p.AcademicInfo.Degrees,
	}
	errs := required(fields)
	if !p.Compliance.AgreeToDiscloseConflicts {
		errs = append(errs, apperr.ValidationError{Field: "compliance.agreeToDiscloseConflicts", Message: "must be accepted"})
	}
	if !p.Compliance.WillComplyWithEthics {
		errs = append(errs, apperr.ValidationError{Field: "compliance.willComplyWithEthics", Message: "must be accepted"})
	}
	if !p.Compliance.AcceptJournalPolicies {
		errs = append(errs, apperr.ValidationError{Field: "compliance.acceptJournalPolicies", Message: "must be accepted"})
	}
	if p.ContactInfo.PrimaryEmail != "" && !utils.ValidEmail(p.ContactInfo.PrimaryEmail) {
		errs = append(errs, apperr.ValidationError{Field: "contactInfo.primaryEmail", Message: "must be a valid email"})
	}
	return errs
}

// UpdateAuthorProfile replaces the full author profile.
func (h *AuthHandler) UpdateAuthorProfile(c echo.Context) error {
	var p model.AuthorProfile
	if err := bindJSON(c, &p); err != nil {
		return err
	}
	errs := missingAuthorFields(&p)
	errs = append(errs, identifierErrors(p.AcademicInfo.ORCID, p.AcademicInfo.ScopusID, p.AcademicInfo.ResearchGate)...)
	if len(errs) > 0 {
		return apperr.Validation(errs)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Users.UpdateAuthorProfile(ctx, middleware.UserID(c), &p); err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"isProfileComplete": true, "authorProfile": p})
}
