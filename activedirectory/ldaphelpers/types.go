package ldaphelpers

// Attributes read during a scan.
const (
	AttrCommonName         = "cn"
	AttrMail               = "mail"
	AttrDistinguishedName  = "distinguishedName"
	AttrDescription        = "description"
	AttrPwdLastSet         = "pwdLastSet"
	AttrUserAccountControl = "userAccountControl"
	AttrSAMAccountName     = "sAMAccountName"
	AttrObjectGUID         = "objectGUID"
	AttrObjectSid          = "objectSid"
)

// ScanAttributes is the attribute list requested by user scans.
var ScanAttributes = []string{
	AttrCommonName,
	AttrMail,
	AttrDistinguishedName,
	AttrDescription,
	AttrPwdLastSet,
	AttrUserAccountControl,
	AttrSAMAccountName,
	AttrObjectGUID,
	AttrObjectSid,
}

// RequiredAttributes must all be present for an entry to be classified.
var RequiredAttributes = []string{
	AttrPwdLastSet,
	AttrDescription,
	AttrCommonName,
	AttrMail,
	AttrDistinguishedName,
}
