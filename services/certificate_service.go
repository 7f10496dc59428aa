package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"log"
	"os"
	"strings"
	"time"

	"volunteer-portal/models"
	"volunteer-portal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

var errProofNotApproved = errors.New("proof is not approved")

type CertificateService struct {
	DB *gorm.DB
}

func NewCertificateService(db *gorm.DB) *CertificateService {
	return &CertificateService{DB: db}
}

// CertificateIDForProof derives the certificate identity from the proof ID.
// Same proof in, same certificate out, no matter how many times issuance runs.
func CertificateIDForProof(proofID string) string {
	sum := sha256.Sum256([]byte(proofID))
	return "CERT-" + strings.ToUpper(hex.EncodeToString(sum[:])[:10])
}

// certificateTemplate renders the verifiable document. Kept deliberately
// self-contained: no external assets, so the stored HTML never goes stale.
var certificateTemplate = template.Must(template.New("certificate").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Certificate {{.CertificateID}}</title>
<style>
  body { font-family: Georgia, serif; background: #f6f2e8; margin: 0; }
  .frame { max-width: 760px; margin: 48px auto; padding: 56px; background: #fff;
           border: 6px double #b08d2f; text-align: center; }
  h1 { letter-spacing: 4px; color: #b08d2f; margin-bottom: 8px; }
  .name { font-size: 34px; margin: 24px 0 8px; }
  .meta { color: #555; margin: 4px 0; }
  .points { font-size: 20px; font-weight: bold; margin-top: 16px; }
  .verify { margin-top: 40px; font-size: 12px; color: #888; }
</style>
</head>
<body>
<div class="frame">
  <h1>CERTIFICATE OF PARTICIPATION</h1>
  <p class="meta">This certificate is proudly presented to</p>
  <p class="name">{{.VolunteerName}}</p>
  <p class="meta">for volunteering at</p>
  <p class="meta"><strong>{{.EventTitle}}</strong></p>
  <p class="points">{{.PointsAwarded}} points awarded</p>
  <p class="meta">Issued on {{.IssuedOn}}</p>
  <p class="verify">Verify this certificate at {{.VerifyURL}}<br>ID: {{.CertificateID}}</p>
</div>
</body>
</html>
`))

type certificatePage struct {
	CertificateID string
	VolunteerName string
	EventTitle    string
	PointsAwarded int
	IssuedOn      string
	VerifyURL     string
}

// Issue mints (or returns) the certificate for an approved proof. Runs inside
// the approval transaction so a certificate never exists without its APPROVED
// proof. Idempotent: a second call for the same proof finds the existing row.
func (s *CertificateService) Issue(tx *gorm.DB, proof *models.Proof, event *models.Event, user *models.VolunteerUser) (*models.Certificate, error) {
	if proof.Status != models.ProofStatusApproved {
		return nil, errProofNotApproved
	}

	certID := CertificateIDForProof(proof.ID)

	var existing models.Certificate
	err := tx.First(&existing, "id = ?", certID).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	issuedAt := time.Now()
	if proof.ReviewedAt != nil {
		issuedAt = *proof.ReviewedAt
	}

	cert := models.Certificate{
		ID:            certID,
		ProofID:       proof.ID,
		UserID:        proof.UserID,
		EventID:       proof.EventID,
		VolunteerName: cases.Title(language.English).String(strings.ToLower(user.Name)),
		EventTitle:    event.Title,
		PointsAwarded: proof.PointsAwarded,
		IssuedDate:    issuedAt,
	}
	if err := tx.Create(&cert).Error; err != nil {
		return nil, err
	}
	return &cert, nil
}

// RenderAndStore renders the certificate document, writes it to the artifact
// store and records the URL. Safe to call again at any time: identity fields
// are never touched, only CertificateURL and RenderedAt move.
func (s *CertificateService) RenderAndStore(cert *models.Certificate) error {
	verifyBase := os.Getenv("PUBLIC_BASE_URL")
	if verifyBase == "" {
		verifyBase = "http://localhost:5100"
	}

	page := certificatePage{
		CertificateID: cert.ID,
		VolunteerName: cert.VolunteerName,
		EventTitle:    cert.EventTitle,
		PointsAwarded: cert.PointsAwarded,
		IssuedOn:      cert.IssuedDate.Format("January 2, 2006"),
		VerifyURL:     fmt.Sprintf("%s/certificates/verify/%s", strings.TrimSuffix(verifyBase, "/"), cert.ID),
	}

	var buf bytes.Buffer
	if err := certificateTemplate.Execute(&buf, page); err != nil {
		return fmt.Errorf("failed to render certificate: %w", err)
	}

	key := fmt.Sprintf("certificates/%s-%s.html",
		slug.Make(unidecode.Unidecode(cert.VolunteerName)),
		strings.ToLower(strings.TrimPrefix(cert.ID, "CERT-")),
	)

	var url string
	var err error
	for attempt := 1; attempt <= artifactStoreAttempts; attempt++ {
		url, err = utils.StoreArtifactBytes(buf.Bytes(), "text/html; charset=utf-8", key)
		if err == nil {
			break
		}
		log.Printf("certificate store attempt %d/%d failed for %s: %v", attempt, artifactStoreAttempts, cert.ID, err)
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	if err != nil {
		return err
	}

	now := time.Now()
	if err := s.DB.Model(&models.Certificate{}).
		Where("id = ?", cert.ID).
		Updates(map[string]interface{}{
			"certificate_url": url,
			"rendered_at":     now,
		}).Error; err != nil {
		return err
	}

	cert.CertificateURL = url
	cert.RenderedAt = now
	return nil
}

// VerifyCertificate is the public lookup printed on every certificate.
// Unknown IDs answer 200 with is_valid=false, never 404: the response shape
// is part of the published contract.
func (s *CertificateService) VerifyCertificate(c *fiber.Ctx) error {
	certID := c.Params("id")

	var cert models.Certificate
	if err := s.DB.First(&cert, "id = ?", certID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(models.VerificationResult{IsValid: false})
		}
		log.Printf("DB error verifying certificate %s: %v", certID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	issued := cert.IssuedDate
	return c.JSON(models.VerificationResult{
		IsValid:       true,
		CertificateID: cert.ID,
		VolunteerName: cert.VolunteerName,
		EventTitle:    cert.EventTitle,
		PointsAwarded: cert.PointsAwarded,
		IssuedDate:    &issued,
	})
}

// GetUserCertificates lists the caller's certificates, newest first.
func (s *CertificateService) GetUserCertificates(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var certs []models.Certificate
	if err := s.DB.Where("user_id = ?", userID).
		Order("issued_date DESC").
		Find(&certs).Error; err != nil {
		log.Printf("DB error fetching certificates for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch certificates"})
	}
	return c.JSON(certs)
}

// DownloadCertificate redirects the owner to the rendered document,
// re-rendering on demand if the stored copy was never written.
func (s *CertificateService) DownloadCertificate(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	certID := c.Params("id")

	var cert models.Certificate
	if err := s.DB.First(&cert, "id = ?", certID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "certificate not found", "code": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	if cert.UserID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "you can only download your own certificates",
			"code":  "forbidden",
		})
	}

	if cert.CertificateURL == "" {
		if err := s.RenderAndStore(&cert); err != nil {
			log.Printf("on-demand render failed for %s: %v", cert.ID, err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "certificate document unavailable",
				"code":  "unavailable",
			})
		}
	}

	return c.Redirect(cert.CertificateURL, fiber.StatusFound)
}

// RegenerateCertificate re-renders the certificate document for an approved
// proof (Admin only). Identity fields never move: only the stored document
// and renderedAt change.
func (s *CertificateService) RegenerateCertificate(c *fiber.Ctx) error {
	proofID := c.Params("id")

	var proof models.Proof
	if err := s.DB.First(&proof, "id = ?", proofID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "proof not found", "code": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if proof.Status != models.ProofStatusApproved {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "proof is not approved",
			"code":  "invalid_state",
		})
	}

	var cert models.Certificate
	if err := s.DB.First(&cert, "proof_id = ?", proofID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "certificate not found", "code": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	if err := s.RenderAndStore(&cert); err != nil {
		log.Printf("regenerate failed for %s: %v", cert.ID, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "certificate document unavailable",
			"code":  "unavailable",
		})
	}

	return c.JSON(cert)
}
