/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package control

import (
	_ "embed"
	"encoding/json"
	"net/http"

	"github.com/go-openapi/loads"
	"github.com/go-openapi/runtime/middleware"
)

const (
	apiBasePath = "/api"
	docsPath    = "docs"
)

//go:embed swagger.json
var swaggerJSON []byte

// LoadDocs parses and analyzes the embedded swagger document
func LoadDocs() (*loads.Document, error) {
	return loads.Analyzed(json.RawMessage(swaggerJSON), "")
}

// docsHandler serves the raw document at /api/swagger.json and a Redoc
// page rendering it at /api/docs.
func docsHandler(doc *loads.Document) http.Handler {
	redoc := middleware.Redoc(middleware.RedocOpts{
		BasePath: apiBasePath,
		Path:     docsPath,
		SpecURL:  apiBasePath + "/swagger.json",
		Title:    doc.Spec().Info.Title,
	}, http.NotFoundHandler())
	return middleware.Spec(apiBasePath, doc.Raw(), redoc)
}
