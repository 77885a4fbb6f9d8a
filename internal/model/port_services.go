package model

// CommonPorts 1-1024 内常见端口的服务名，用于报告展示
var CommonPorts = map[int]string{
	20:  "FTP-DATA",
	21:  "FTP",
	22:  "SSH",
	23:  "Telnet",
	25:  "SMTP",
	53:  "DNS",
	69:  "TFTP",
	80:  "HTTP",
	88:  "Kerberos",
	110: "POP3",
	111: "RPC",
	123: "NTP",
	135: "MSRPC",
	137: "NetBIOS-NS",
	139: "NetBIOS-SSN",
	143: "IMAP",
	161: "SNMP",
	389: "LDAP",
	443: "HTTPS",
	445: "SMB",
	465: "SMTPS",
	514: "Syslog",
	587: "Submission",
	631: "IPP",
	636: "LDAPS",
	873: "rsync",
	993: "IMAPS",
	995: "POP3S",
}

// ServiceName 未知端口返回空字符串
func ServiceName(port int) string {
	return CommonPorts[port]
}
