package scanning

import (
	"fmt"
	"strings"
)

// transcribePrompt asks the OCR model for the raw text only
const transcribePrompt = `Transcribe TODO el texto visible de este documento tal y como aparece. No interpretes nada: devuelve el texto completo, incluidos números, fechas y nombres. Si hay tablas, conserva su estructura.`

// structureSystemPrompt is shared by every model that turns invoice text into fields
const structureSystemPrompt = `Eres un contable español. Analizas facturas de proveedores y devuelves únicamente un objeto JSON.

Reglas:
1. Devuelve solo el objeto JSON, sin texto adicional ni bloques de código.
2. Fechas en formato DD/MM/YYYY.
3. Importes con punto decimal (125.50), nunca con coma.
4. Si falta base_imponible, calcúlala como total - cuota_iva.
5. Si falta cuota_iva, calcúlala como total - base_imponible.
6. Usa null para cualquier campo que no encuentres.
7. El proveedor es quien EMITE la factura, no quien la recibe.

Estructura:
{
  "fecha": "DD/MM/YYYY",
  "numero_factura": "string",
  "base_imponible": number,
  "cuota_iva": number,
  "total": number,
  "proveedor": "string",
  "cif_proveedor": "string",
  "codigo_proveedor": "string o null"
}`

// requestHints describes the upload choices so the model can use them as context
func requestHints(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tipo de documento: %s\n", req.DocumentType.Label())
	fmt.Fprintf(&b, "Deducibilidad: %s\n", req.Deductibility.Label())
	if req.ProviderCode != "" {
		fmt.Fprintf(&b, "Código de proveedor indicado por el usuario: %s\n", req.ProviderCode)
	}
	if req.Filename != "" {
		fmt.Fprintf(&b, "Nombre del archivo: %s\n", req.Filename)
	}
	return b.String()
}

// imagePrompt is used by vision models that read the document directly
func imagePrompt(req Request) string {
	return structureSystemPrompt + "\n\n" + requestHints(req) + "\nLee la factura de la imagen y devuelve el JSON."
}

// textPrompt is used when the document has already been transcribed
func textPrompt(req Request, ocrText string) string {
	return requestHints(req) + "\nAnaliza el siguiente texto extraído por OCR de una factura y devuelve el JSON estructurado:\n\n" + ocrText
}
