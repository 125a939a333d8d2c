package config

// AWSConfig represents the AWS configuration shared by the S3 backend, the S3
// export sink and the KMS wrapper.
type AWSConfig struct {
	Region    string `mapstructure:"region"`
	S3Bucket  string `mapstructure:"s3_bucket"`
	S3Prefix  string `mapstructure:"s3_prefix"`
	KMSKeyARN string `mapstructure:"kms_key_arn" validate:"omitempty,arn"`
	Endpoint  string `mapstructure:"endpoint"    validate:"omitempty,url"`
}
