package configuration

import (
	"encoding/xml"

	"github.com/nci/sdi/servicedef"
)

// Status of a service instance as seen by the registry.
type Status string

const (
	StatusStarted    Status = "STARTED"
	StatusStopped    Status = "STOPPED"
	StatusError      Status = "ERROR"
	StatusNotStarted Status = "NOT_STARTED"
)

// Instance describes one configured service instance.
type Instance struct {
	XMLName    xml.Name                 `xml:"Instance" json:"-"`
	Identifier string                   `xml:"identifier" json:"identifier"`
	Type       servicedef.Specification `xml:"type" json:"type"`
	Status     Status                   `xml:"status" json:"status"`
	Versions   []string                 `xml:"versions>version" json:"versions"`
	Message    string                   `xml:"message,omitempty" json:"message,omitempty"`
}

type Contact struct {
	FirstName    string `xml:"firstname,omitempty" json:"firstname,omitempty"`
	LastName     string `xml:"lastname,omitempty" json:"lastname,omitempty"`
	Organisation string `xml:"organisation,omitempty" json:"organisation,omitempty"`
	Position     string `xml:"position,omitempty" json:"position,omitempty"`
	Phone        string `xml:"phone,omitempty" json:"phone,omitempty"`
	Email        string `xml:"email,omitempty" json:"email,omitempty"`
	URL          string `xml:"url,omitempty" json:"url,omitempty"`
}

// ServiceMetadata is the human facing description of an instance,
// stored next to its configuration as serviceMetadata.xml.
type ServiceMetadata struct {
	XMLName     xml.Name `xml:"ServiceMetadata" json:"-"`
	Identifier  string   `xml:"identifier" json:"identifier"`
	Name        string   `xml:"name" json:"name"`
	Description string   `xml:"description,omitempty" json:"description,omitempty"`
	Keywords    []string `xml:"keywords>keyword,omitempty" json:"keywords,omitempty"`
	Contact     *Contact `xml:"contact,omitempty" json:"contact,omitempty"`
	Versions    []string `xml:"versions>version,omitempty" json:"versions,omitempty"`
	Lang        string   `xml:"lang,omitempty" json:"lang,omitempty"`
}

// Parameter is a free key/value pair carried by most configurations.
type Parameter struct {
	Name  string `xml:"name,attr" json:"name"`
	Value string `xml:",chardata" json:"value"`
}

type Layer struct {
	Name   string   `xml:"name,attr" json:"name"`
	Alias  string   `xml:"alias,attr,omitempty" json:"alias,omitempty"`
	Title  string   `xml:"Title,omitempty" json:"title,omitempty"`
	Styles []string `xml:"Style,omitempty" json:"styles,omitempty"`
}

// Source groups the layers published from one data provider. With LoadAll
// every layer of the provider is published except the excluded ones,
// otherwise only the included ones are.
type Source struct {
	ID      string  `xml:"id,attr" json:"id"`
	LoadAll bool    `xml:"load_all,attr" json:"load_all"`
	Include []Layer `xml:"include>Layer,omitempty" json:"include,omitempty"`
	Exclude []Layer `xml:"exclude>Layer,omitempty" json:"exclude,omitempty"`
}

// LayerContext configures the map services (WMS, WMTS, WFS, WCS).
type LayerContext struct {
	XMLName          xml.Name    `xml:"LayerContext" json:"-"`
	Sources          []Source    `xml:"layers>Source" json:"sources"`
	Security         string      `xml:"security,omitempty" json:"security,omitempty"`
	CustomParameters []Parameter `xml:"customParameters>parameter,omitempty" json:"custom_parameters,omitempty"`
}

// BDD holds database connection settings of a data store.
type BDD struct {
	ClassName  string `xml:"className,omitempty" json:"class_name,omitempty"`
	ConnectURL string `xml:"connectURL" json:"connect_url"`
	User       string `xml:"user,omitempty" json:"user,omitempty"`
	Password   string `xml:"password,omitempty" json:"password,omitempty"`
}

const (
	FormatFilesystem = "filesystem"
	FormatPostgres   = "postgres"
)

// Automatic configures a metadata or observation store (CSW, SOS).
type Automatic struct {
	XMLName          xml.Name    `xml:"automatic" json:"-"`
	Format           string      `xml:"format,attr" json:"format"`
	Name             string      `xml:"name,attr,omitempty" json:"name,omitempty"`
	DataDirectory    string      `xml:"dataDirectory,omitempty" json:"data_directory,omitempty"`
	BDD              *BDD        `xml:"bdd,omitempty" json:"bdd,omitempty"`
	Profile          string      `xml:"profile,omitempty" json:"profile,omitempty"`
	CustomParameters []Parameter `xml:"customParameters>parameter,omitempty" json:"custom_parameters,omitempty"`
}

// SOSConfiguration configures an SOS instance with its sensor description
// store and its observation store.
type SOSConfiguration struct {
	XMLName           xml.Name  `xml:"SOSConfiguration" json:"-"`
	SMLConfiguration  Automatic `xml:"SMLConfiguration>automatic" json:"sml_configuration"`
	OMConfiguration   Automatic `xml:"OMConfiguration>automatic" json:"om_configuration"`
	Profile           string    `xml:"profile,omitempty" json:"profile,omitempty"`
	ObservationIDBase string    `xml:"observationIdBase,omitempty" json:"observation_id_base,omitempty"`
}

type Process struct {
	ID string `xml:"id,attr" json:"id"`
}

// ProcessFactory selects processes of one processing authority.
type ProcessFactory struct {
	AuthorityCode string    `xml:"autorityCode,attr" json:"authority_code"`
	LoadAll       bool      `xml:"load_all,attr" json:"load_all"`
	Include       []Process `xml:"include>Process,omitempty" json:"include,omitempty"`
	Exclude       []Process `xml:"exclude>Process,omitempty" json:"exclude,omitempty"`
}

type Processes struct {
	LoadAll   bool             `xml:"load_all,attr" json:"load_all"`
	Factories []ProcessFactory `xml:"ProcessFactory" json:"factories,omitempty"`
}

// ProcessContext configures a WPS instance.
type ProcessContext struct {
	XMLName      xml.Name    `xml:"ProcessContext" json:"-"`
	Processes    Processes   `xml:"processes" json:"processes"`
	WMSInstance  string      `xml:"wmsInstanceName,omitempty" json:"wms_instance,omitempty"`
	TmpDirectory string      `xml:"tmpDirectory,omitempty" json:"tmp_directory,omitempty"`
	Parameters   []Parameter `xml:"customParameters>parameter,omitempty" json:"custom_parameters,omitempty"`
}
