package handlers

import (
	"math"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
)

var messages = map[domain.Code][2]string{
	domain.CodeNoImageProvided:     {"No image provided.", "Tidak ada gambar yang dikirim."},
	domain.CodeInvalidFrameType:    {"Invalid frame type. Choose ikhwan or akhwat.", "Jenis bingkai tidak valid. Pilih ikhwan atau akhwat."},
	domain.CodeImageTooLarge:       {"The image is too large.", "Ukuran gambar terlalu besar."},
	domain.CodeInvalidRequest:      {"The request is invalid.", "Permintaan tidak valid."},
	domain.CodeRecordNotFound:      {"Generation not found.", "Data generasi tidak ditemukan."},
	domain.CodeObjectNotFound:      {"The image is no longer available.", "Gambar sudah tidak tersedia."},
	domain.CodeUnknownFrame:        {"Unknown frame.", "Bingkai tidak dikenal."},
	domain.CodeDecodeError:         {"The image could not be read.", "Gambar tidak dapat dibaca."},
	domain.CodeRateLimited:         {"Too many requests, please try again shortly.", "Terlalu banyak permintaan, coba lagi sebentar lagi."},
	domain.CodeAuthentication:      {"The image service is not configured.", "Layanan gambar belum dikonfigurasi."},
	domain.CodeUpstreamUnavailable: {"The image service is unavailable, please try again.", "Layanan gambar sedang tidak tersedia, silakan coba lagi."},
	domain.CodeTransientNetwork:    {"A network error occurred, please try again.", "Terjadi gangguan jaringan, silakan coba lagi."},
	domain.CodeStorageUnavailable:  {"Storage is unavailable, please try again.", "Penyimpanan sedang tidak tersedia, silakan coba lagi."},
	domain.CodeInternal:            {"Something went wrong.", "Terjadi kesalahan."},
}

var messageCatalog = func() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for code, text := range messages {
		_ = b.SetString(language.English, string(code), text[0])
		_ = b.SetString(language.Indonesian, string(code), text[1])
	}
	return b
}()

// localize returns the catalog text for code, or fallback when the code has
// no entry.
func localize(locale string, code domain.Code, fallback string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	if _, ok := messages[code]; !ok {
		if fallback != "" {
			return fallback
		}
		code = domain.CodeInternal
	}
	return message.NewPrinter(tag, message.Catalog(messageCatalog)).Sprintf(string(code))
}

func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}
