package risk

// MitreReference maps an exposed port to the MITRE ATT&CK technique an
// adversary would most likely use against it. The table is the single
// source of truth for port-to-technique mapping; ports absent from it
// are reported as open but carry no finding and no score weight.
type MitreReference struct {
	TechniqueID  string `json:"technique_id"`
	TacticName   string `json:"tactic_name"`
	ServiceName  string `json:"service_name"`
	BaseSeverity Level  `json:"base_severity"`
}

// Well-known ports referenced by scoring and triage rules.
const (
	PortFTP      = 21
	PortSSH      = 22
	PortTelnet   = 23
	PortSMTP     = 25
	PortHTTP     = 80
	PortHTTPS    = 443
	PortSMB      = 445
	PortRDP      = 3389
	PortVNC      = 5900
	PortHTTPAlt  = 8080
	PortHTTPSAlt = 8443
)

var mitreAttackMap = map[int]MitreReference{
	PortFTP:      {TechniqueID: "T1071.001", TacticName: "Command and Control", ServiceName: "FTP", BaseSeverity: Medium},
	PortSSH:      {TechniqueID: "T1021.004", TacticName: "Lateral Movement", ServiceName: "SSH", BaseSeverity: High},
	PortTelnet:   {TechniqueID: "T1071.001", TacticName: "Command and Control", ServiceName: "Telnet", BaseSeverity: High},
	PortSMTP:     {TechniqueID: "T1071.003", TacticName: "Command and Control", ServiceName: "SMTP", BaseSeverity: Medium},
	PortHTTP:     {TechniqueID: "T1190", TacticName: "Initial Access", ServiceName: "HTTP", BaseSeverity: Medium},
	PortHTTPS:    {TechniqueID: "T1190", TacticName: "Initial Access", ServiceName: "HTTPS", BaseSeverity: Medium},
	PortSMB:      {TechniqueID: "T1021.002", TacticName: "Lateral Movement", ServiceName: "SMB", BaseSeverity: Critical},
	PortRDP:      {TechniqueID: "T1021.001", TacticName: "Lateral Movement", ServiceName: "RDP", BaseSeverity: Critical},
	PortVNC:      {TechniqueID: "T1021.005", TacticName: "Lateral Movement", ServiceName: "VNC", BaseSeverity: High},
	PortHTTPAlt:  {TechniqueID: "T1190", TacticName: "Initial Access", ServiceName: "HTTP-Alt", BaseSeverity: Medium},
	PortHTTPSAlt: {TechniqueID: "T1190", TacticName: "Initial Access", ServiceName: "HTTPS-Alt", BaseSeverity: Medium},
}

// LookupMitre returns the technique reference for a port, if mapped.
func LookupMitre(port int) (MitreReference, bool) {
	ref, ok := mitreAttackMap[port]
	return ref, ok
}
